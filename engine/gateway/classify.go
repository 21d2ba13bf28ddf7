package gateway

import (
	"errors"
	"net/http"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/pkg/modelclient"
	"github.com/FishySoftware/semantic-explorer/pkg/resilience"
)

// classify maps a backend call failure to the HTTP status the gateway
// hands back to its own caller, mirroring engine/worker/classify.go's
// status-to-Kind table but translating the Kind back out to a response
// code instead of an ack/nak/term decision.
func classify(err error) (status int, kind domain.Kind) {
	if err == nil {
		return http.StatusOK, domain.KindTransient
	}
	if errors.Is(err, resilience.ErrNoCapacity) || errors.Is(err, resilience.ErrCircuitOpen) {
		return http.StatusServiceUnavailable, domain.KindPressure
	}
	var httpErr *modelclient.HTTPError
	if errors.As(err, &httpErr) {
		k := kindForStatus(httpErr.StatusCode)
		return statusForKind(k), k
	}
	if c := domain.KindOf(err); c != domain.KindTransient {
		return statusForKind(c), c
	}
	return http.StatusBadGateway, domain.KindTransient
}

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

func statusForKind(k domain.Kind) int {
	switch k {
	case domain.KindPressure:
		return http.StatusServiceUnavailable
	case domain.KindPermanent, domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInvariant:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
