package login

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

// The login flow answers the browser with tiny self-contained pages: inline
// styling, no assets, nothing cacheable. Provider secrets and internal
// errors never reach these templates.

var errorPageTemplate = template.Must(template.New("error").Parse(
	`<html><body><div style="position:absolute;top:50%;left:50%;transform:translateX(-50%) translateY(-50%);text-align:center">` +
		`<code style="word-wrap:break-word;white-space:pre;font-size:125%"><b>error</b><br/><br/>{{.Message}}<br/><br/>` +
		`<a href="javascript:window.close();">close window</a></code></div></body></html>`))

var warningPageTemplate = template.Must(template.New("warning").Parse(
	`<html><body><div style="position:absolute;top:50%;left:50%;transform:translateX(-50%) translateY(-50%);text-align:center">` +
		`<code><span style="font-size:500%">&#9888;&#65039;</span><br/><br/>your origin is local ({{.Origin}})<br/><br/>` +
		`<a href="{{.ContinueURL}}">continue</a> only if developer</code></div></body></html>`))

const closePageHTML = `<html><head><script type="text/javascript">window.close();</script></head><html>`

var resultPageTemplate = template.Must(template.New("result").Parse(
	`<html><head><script type="text/javascript">function closePopup(){window.opener.postMessage({{.Payload}},{{.Origin}});{{if not .Debug}}window.close();{{end}}}</script></head>` +
		`<body onload="closePopup()">{{if .Debug}}<code style="word-wrap:break-word;white-space:pre">you are logged in<br/><br/>` +
		`<a href="javascript:window.close();">close window</a><br/><br/>------------------------<br/><br/>` +
		`nonce: {{.Debugging.Nonce}}<br/>userid: {{.Debugging.UserID}}<br/>provider: {{.Debugging.Provider}} ({{.Debugging.ProviderName}})<br/>` +
		`loginname: {{.Debugging.LoginName}}<br/><br/>tokens: {{.Debugging.Tokens}}</code>{{end}}</body></html>`))

// resultPayload is delivered to the opening window via a targeted
// postMessage; field names are part of the client contract.
type resultPayload struct {
	Nonce     string       `json:"nonce"`
	Tokens    resultTokens `json:"tokens"`
	Provider  int          `json:"provider"`
	LoginName string       `json:"loginname"`
}

type resultTokens struct {
	Settings string `json:"settings"`
	Game     string `json:"game"`
}

type debugDetails struct {
	Nonce        string
	UserID       string
	Provider     int
	ProviderName string
	LoginName    string
	Tokens       string
}

func renderErrorPage(contextGin *gin.Context, status int, message string) {
	contextGin.Status(status)
	contextGin.Header("Content-Type", "text/html; charset=utf-8")
	_ = errorPageTemplate.Execute(contextGin.Writer, gin.H{"Message": message})
	contextGin.Abort()
}

func renderWarningPage(contextGin *gin.Context, origin string, continueURL string) {
	contextGin.Status(http.StatusOK)
	contextGin.Header("Content-Type", "text/html; charset=utf-8")
	_ = warningPageTemplate.Execute(contextGin.Writer, gin.H{
		"Origin":      origin,
		"ContinueURL": template.URL(continueURL),
	})
	contextGin.Abort()
}

func renderClosePage(contextGin *gin.Context) {
	contextGin.Data(http.StatusOK, "text/html; charset=utf-8", []byte(closePageHTML))
}

func renderResultPage(contextGin *gin.Context, payload resultPayload, origin string, debug bool, details debugDetails) error {
	payloadJSON, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return marshalErr
	}
	contextGin.Status(http.StatusOK)
	contextGin.Header("Content-Type", "text/html; charset=utf-8")
	return resultPageTemplate.Execute(contextGin.Writer, gin.H{
		"Payload":   template.JS(payloadJSON),
		"Origin":    origin,
		"Debug":     debug,
		"Debugging": details,
	})
}
