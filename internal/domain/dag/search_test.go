package dag

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/connect-extensions/internal/adapters/connect"
)

func TestSearchHits(t *testing.T) {
	Convey("Given search results", t, func() {
		items := []connect.Content{
			{GUID: "g1", Title: "Only Title", Description: strings.Repeat("d", 120), Owner: &connect.User{Username: "ada"}},
			{GUID: "g2", Name: "etl", AppMode: "quarto-static", Description: "short"},
		}
		hits := SearchHits(items)

		So(hits[0].Name, ShouldEqual, "Only Title")
		So(hits[0].ContentType, ShouldEqual, "unknown")
		So(hits[0].Description, ShouldEqual, strings.Repeat("d", 100)+"...")
		So(hits[0].Author, ShouldEqual, "ada")
		So(hits[1].Name, ShouldEqual, "etl")
		So(hits[1].Description, ShouldEqual, "short")
		So(hits[1].Author, ShouldEqual, "Unknown")
	})

	Convey("At most ten hits are returned", t, func() {
		So(SearchHits(make([]connect.Content, 15)), ShouldHaveLength, 10)
	})

	Convey("Missing times are left out of the JSON", t, func() {
		deployed := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
		hits := SearchHits([]connect.Content{{GUID: "g1", Name: "app", LastDeployedTime: deployed}})
		So(hits[0].CreatedTime, ShouldBeNil)
		So(hits[0].LastDeployedTime.Equal(deployed), ShouldBeTrue)

		raw, err := json.Marshal(hits[0])
		So(err, ShouldBeNil)
		So(string(raw), ShouldNotContainSubstring, "created_time")
		So(string(raw), ShouldNotContainSubstring, "0001-01-01")
		So(string(raw), ShouldContainSubstring, `"last_deployed_time":"2025-06-02T08:30:00Z"`)
	})
}
