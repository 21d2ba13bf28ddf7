package worker

import (
	"errors"
	"net/http"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/pkg/modelclient"
)

// classify maps an error from a model-client call or storage write to the
// Kind the harness uses to decide ack/nak/term.
func classify(component string, err error) error {
	if err == nil {
		return nil
	}
	var httpErr *modelclient.HTTPError
	if errors.As(err, &httpErr) {
		return domain.Classify(component, kindForStatus(httpErr.StatusCode), err)
	}
	if domain.KindOf(err) != domain.KindTransient {
		return err // already classified upstream
	}
	return domain.Classify(component, domain.KindTransient, err)
}

// kindForStatus mirrors the provider error taxonomy most HTTP-speaking
// model servers converge on: 429/5xx are worth retrying, 4xx other than
// 429 are not, and 401/403 are permanent misconfiguration.
func kindForStatus(status int) domain.Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.KindPressure
	case status >= 500:
		return domain.KindTransient
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.KindPermanent
	case status >= 400:
		return domain.KindPermanent
	default:
		return domain.KindTransient
	}
}
