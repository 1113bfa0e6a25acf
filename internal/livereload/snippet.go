package livereload

import (
	"fmt"
	"strings"
)

// Snippet returns the script that reloads the page when the hub at path
// sends a reload message.
func Snippet(path string) string {
	return fmt.Sprintf(`<script>(function(){var p=location.protocol==="https:"?"wss://":"ws://";`+
		`var ws=new WebSocket(p+location.host+%q);`+
		`ws.onmessage=function(e){try{if(JSON.parse(e.data).type===%q){location.reload()}}catch(_){}}})();</script>`,
		path, MessageReload)
}

// Inject inserts the reload snippet before the last </body>, or appends it
// when the document has none.
func Inject(doc, path string) string {
	snippet := Snippet(path)
	i := strings.LastIndex(doc, "</body>")
	if i < 0 {
		i = strings.LastIndex(doc, "</BODY>")
	}
	if i < 0 {
		return doc + snippet
	}
	return doc[:i] + snippet + doc[i:]
}
