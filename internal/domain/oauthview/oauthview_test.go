package oauthview_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/internal/domain/oauthview"
)

func TestJoin(t *testing.T) {
	Convey("Given sessions, users and integrations", t, func() {
		t0 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
		sessions := []connect.OAuthSession{
			{GUID: "s1", UserGUID: "u1", IntegrationGUID: "i1", CreatedTime: t0},
			{GUID: "s2", UserGUID: "u2", IntegrationGUID: "i1", CreatedTime: t0.Add(2 * time.Hour)},
			{GUID: "s3", UserGUID: "u1", IntegrationGUID: "gone", CreatedTime: t0.Add(time.Hour)},
		}
		users := []connect.User{{GUID: "u1", Username: "ada"}, {GUID: "u2", Username: "bob"}}
		integrations := []connect.OAuthIntegration{{GUID: "i1", Name: "GitHub"}}

		rows := oauthview.Join(sessions, users, integrations)

		Convey("Rows are newest first with names attached", func() {
			So(rows[0].GUID, ShouldEqual, "s2")
			So(rows[0].UserName, ShouldEqual, "bob")
			So(rows[1].GUID, ShouldEqual, "s3")
			So(rows[1].IntegrationName, ShouldBeEmpty)
			So(rows[2].IntegrationName, ShouldEqual, "GitHub")
		})

		Convey("Counts are tallied largest first", func() {
			ov := oauthview.Summarize(rows)
			So(ov.Integrations, ShouldResemble, []oauthview.Count{
				{GUID: "i1", Name: "GitHub", Count: 2},
				{GUID: "gone", Name: "", Count: 1},
			})
			So(ov.Users[0], ShouldResemble, oauthview.Count{GUID: "u1", Name: "ada", Count: 2})
			So(ov.Users, ShouldHaveLength, 2)
		})
	})

	Convey("No sessions gives empty summaries", t, func() {
		ov := oauthview.Summarize(oauthview.Join(nil, nil, nil))
		So(ov.Sessions, ShouldBeEmpty)
		So(ov.Integrations, ShouldNotBeNil)
		So(ov.Users, ShouldBeEmpty)
	})
}

func TestInspect(t *testing.T) {
	Convey("Given tokens", t, func() {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ada"}).SignedString([]byte("secret"))
		So(err, ShouldBeNil)

		Convey("JWTs are decoded without verification", func() {
			p := oauthview.Inspect(signed, signed)
			So(p.Session.Parsed, ShouldBeTrue)
			So(p.Session.Claims, ShouldContainSubstring, `"sub": "ada"`)
			So(p.Access.Parsed, ShouldBeTrue)
		})

		Convey("Opaque access tokens are shown raw", func() {
			p := oauthview.Inspect(signed, "gho_opaque")
			So(p.Access.Parsed, ShouldBeFalse)
			So(p.Access.Claims, ShouldEqual, "gho_opaque")
		})

		Convey("Missing tokens get placeholders", func() {
			p := oauthview.Inspect("", "")
			So(p.Session.Raw, ShouldEqual, oauthview.MissingSessionToken)
			So(p.Session.Claims, ShouldEqual, oauthview.UnparsableSessionToken)
			So(p.Access.Raw, ShouldEqual, oauthview.MissingAccessToken)
			So(p.Access.Claims, ShouldEqual, oauthview.MissingAccessToken)
		})
	})
}
