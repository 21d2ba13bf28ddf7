package modelclient

import (
	"fmt"
	"io"
	"net/http"
)

// HTTPError carries the status code and body of a failed model-backend
// call, letting the gateway's classify.go map it to an error Kind
// (429/503 → transient/pressure, 4xx → permanent) without re-parsing text.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("modelclient: http %d: %s", e.StatusCode, e.Body)
}

func readErrBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return string(b)
}
