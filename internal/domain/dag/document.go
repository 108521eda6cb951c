package dag

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
)

// Deployment file names.
const (
	DocumentFile     = "dag_execution.qmd"
	ProjectFile      = "_quarto.yml"
	RequirementsFile = "requirements.txt"
)

const projectConfig = `project:
  type: website

format:
  html:
    theme: default
    toc: true
    code-fold: false

execute:
  enabled: true
`

const requirements = "posit-sdk\nrequests\n"

//go:embed templates/document.qmd.tmpl
var documentSource string

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"quote":  strconv.Quote,
	"indent": indent,
}).Parse(documentSource))

// File is one generated deployment file.
type File struct {
	Name string
	Data []byte
}

type documentStep struct {
	Label string
	Kind  string
}

type contentStep struct {
	ID   string
	GUID string
}

type customStep struct {
	Code string
}

type documentBatch struct {
	Number   int
	Parallel bool
	Steps    []documentStep
	Content  []contentStep
	Custom   []customStep
	IDList   string
}

type documentData struct {
	Title        string
	Mermaid      string
	NodeCount    int
	EdgeCount    int
	ContentCount int
	CustomCount  int
	Batches      []documentBatch
}

// Document renders an executable Quarto document for the DAG: the Mermaid
// diagram followed by one Python cell per batch.
func Document(title string, nodes []Node, edges []Edge, batches [][]Node) (string, error) {
	content, custom := CountTypes(nodes)
	data := documentData{
		Title:        orDefault(strings.TrimSpace(title), "DAG Execution"),
		Mermaid:      Mermaid(nodes, edges, batches),
		NodeCount:    len(nodes),
		EdgeCount:    len(edges),
		ContentCount: content,
		CustomCount:  custom,
	}
	for i, batch := range batches {
		b := documentBatch{Number: i + 1, Parallel: len(batch) > 1}
		ids := make([]string, 0, len(batch))
		for _, n := range batch {
			ids = append(ids, strconv.Quote(n.ID))
			label := strings.ReplaceAll(orDefault(n.Data.Label, "Unknown"), "\n", " ")
			switch {
			case n.IsContent():
				b.Steps = append(b.Steps, documentStep{Label: label, Kind: orDefault(n.Data.ContentType, "content")})
				b.Content = append(b.Content, contentStep{ID: n.ID, GUID: n.Data.ContentGUID})
			case n.IsCustom():
				b.Steps = append(b.Steps, documentStep{Label: label, Kind: n.Data.CustomType})
				b.Custom = append(b.Custom, customStep{Code: CustomNodeCode(n)})
			default:
				b.Steps = append(b.Steps, documentStep{Label: label, Kind: "unknown"})
			}
		}
		b.IDList = "[" + strings.Join(ids, ", ") + "]"
		data.Batches = append(data.Batches, b)
	}

	var sb strings.Builder
	if err := documentTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return sb.String(), nil
}

// DeploymentFiles returns the files of a deployable Quarto project built
// around document.
func DeploymentFiles(document string) []File {
	return []File{
		{Name: DocumentFile, Data: []byte(document)},
		{Name: ProjectFile, Data: []byte(projectConfig)},
		{Name: RequirementsFile, Data: []byte(requirements)},
	}
}

func indent(code string) string {
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "    " + l
		}
	}
	return strings.Join(lines, "\n")
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// pyIdent turns a node id into a Python identifier suffix.
func pyIdent(id string) string {
	s := nonIdent.ReplaceAllString(id, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "n_" + s
	}
	return s
}

func configString(cfg map[string]any, key, def string) string {
	switch v := cfg[key].(type) {
	case nil:
		return def
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return def
		}
		return string(raw)
	}
}

func configNumber(cfg map[string]any, key string, def float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

var delayUnits = map[string]float64{"seconds": 1, "minutes": 60, "hours": 3600}

func formatNumber(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// CustomNodeCode returns the Python statements that execute a custom node
// and store its result in previous_nodes.
func CustomNodeCode(n Node) string {
	cfg := n.Data.Config
	fn := pyIdent(n.ID)
	id := strconv.Quote(n.ID)

	switch n.Data.CustomType {
	case "webhook":
		return fmt.Sprintf(webhookCode, fn, id,
			strconv.Quote(configString(cfg, "url", "")),
			strconv.Quote(strings.ToUpper(configString(cfg, "method", "GET"))),
			strconv.Quote(configString(cfg, "headers", "{}")),
			strconv.Quote(configString(cfg, "body", "")),
		)
	case "delay":
		duration := configNumber(cfg, "duration", 5)
		unit := configString(cfg, "unit", "seconds")
		multiplier, ok := delayUnits[unit]
		if !ok {
			multiplier = 1
		}
		return fmt.Sprintf(delayCode, fn, id,
			formatNumber(duration), strconv.Quote(unit), formatNumber(duration*multiplier))
	case "condition":
		expr := strings.TrimSpace(configString(cfg, "condition", "True"))
		if expr == "" {
			expr = "True"
		}
		return fmt.Sprintf(conditionCode, fn, id,
			strconv.Quote(expr),
			strconv.Quote(configString(cfg, "trueAction", "continue")),
			strconv.Quote(configString(cfg, "falseAction", "skip_remaining")),
			strconv.Quote(configString(cfg, "notificationMessage", "")),
		)
	default:
		msg := fmt.Sprintf("⚠️  UNKNOWN [%s]: Custom node type '%s' not implemented", n.ID, n.Data.CustomType)
		return fmt.Sprintf("# Unknown custom node type for node %s\nprint(%s)", strings.ReplaceAll(n.ID, "\n", " "), strconv.Quote(msg))
	}
}

const webhookCode = `def execute_webhook_%[1]s():
    import json
    import requests

    node_id = %[2]s
    tag = f"WEBHOOK [{node_id}]"
    try:
        url = %[3]s
        method = %[4]s
        headers = json.loads(%[5]s or "{}")
        body = %[6]s
        print(f"🔗 {tag}: {method} {url}")
        if method in ("POST", "PUT", "PATCH") and body.strip():
            response = requests.request(method, url, headers=headers, json=json.loads(body), timeout=30)
        else:
            response = requests.request(method, url, headers=headers, timeout=30)
        print(f"✅ {tag}: Status {response.status_code}")
        if response.status_code >= 400:
            print(f"⚠️  {tag}: Response: {response.text[:200]}")
        response.raise_for_status()
        return {"status": "success", "status_code": response.status_code, "response": response.text[:500]}
    except requests.exceptions.RequestException as e:
        return _node_error(f"❌ {tag}: Request failed: {e}")
    except json.JSONDecodeError as e:
        return _node_error(f"❌ {tag}: JSON parsing error: {e}")
    except Exception as e:
        return _node_error(f"❌ {tag}: Unexpected error: {e}")

previous_nodes[%[2]s] = execute_webhook_%[1]s()`

const delayCode = `def execute_delay_%[1]s():
    import time

    node_id = %[2]s
    tag = f"DELAY [{node_id}]"
    duration = %[3]s
    unit = %[4]s
    total_seconds = %[5]s
    print(f"⏱️  {tag}: Waiting {duration} {unit}")
    time.sleep(total_seconds)
    print(f"✅ {tag}: Wait completed")
    return {"status": "success", "duration": total_seconds}

previous_nodes[%[2]s] = execute_delay_%[1]s()`

const conditionCode = `def execute_condition_%[1]s(previous_nodes, runtime_context):
    node_id = %[2]s
    tag = f"CONDITION [{node_id}]"
    expression = %[3]s
    try:
        print(f"🔀 {tag}: Available previous nodes: {list(previous_nodes.keys())}")
        scope = {"previous_nodes": previous_nodes, "runtime_context": runtime_context}
        condition_result = bool(eval(expression, scope))
        print(f"🔀 {tag}: Expression: {expression}")
        print(f"🔀 {tag}: Result: {condition_result}")
        action = %[4]s if condition_result else %[5]s
        print(f"🔀 {tag}: Action: {action}")
        if action == "notify":
            notification = %[6]s or f"Condition {node_id} triggered"
            print(f"📢 NOTIFICATION [{node_id}]: {notification}")
        result = {
            "status": "success",
            "condition_result": condition_result,
            "action": action,
            "condition_expression": expression,
        }
        if action in ("stop", "skip_remaining"):
            result["halt_execution"] = True
            result["halt_reason"] = action
        return result
    except NameError as e:
        print(f"🔍 Available variables: previous_nodes={list(previous_nodes.keys())}, runtime_context={list(runtime_context.keys())}")
        return _node_error(f"❌ {tag}: Variable not found: {e}")
    except Exception as e:
        return _node_error(f"❌ {tag}: Evaluation failed: {e}")

previous_nodes[%[2]s] = execute_condition_%[1]s(previous_nodes, runtime_context)`
