package gateway

import (
	"errors"
	"net/http"
	"testing"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/pkg/modelclient"
	"github.com/FishySoftware/semantic-explorer/pkg/resilience"
)

func TestClassify_Nil(t *testing.T) {
	status, kind := classify(nil)
	if status != http.StatusOK || kind != domain.KindTransient {
		t.Fatalf("expected 200/transient, got %d/%s", status, kind)
	}
}

func TestClassify_NoCapacityIsPressure(t *testing.T) {
	status, kind := classify(resilience.ErrNoCapacity)
	if status != http.StatusServiceUnavailable || kind != domain.KindPressure {
		t.Fatalf("expected 503/pressure, got %d/%s", status, kind)
	}
}

func TestClassify_CircuitOpenIsPressure(t *testing.T) {
	status, kind := classify(resilience.ErrCircuitOpen)
	if status != http.StatusServiceUnavailable || kind != domain.KindPressure {
		t.Fatalf("expected 503/pressure, got %d/%s", status, kind)
	}
}

func TestClassify_HTTPErrorMapping(t *testing.T) {
	cases := []struct {
		status     int
		wantStatus int
		wantKind   domain.Kind
	}{
		{http.StatusTooManyRequests, http.StatusServiceUnavailable, domain.KindPressure},
		{http.StatusInternalServerError, http.StatusBadGateway, domain.KindTransient},
		{http.StatusUnauthorized, http.StatusBadRequest, domain.KindPermanent},
		{http.StatusBadRequest, http.StatusBadRequest, domain.KindPermanent},
	}
	for _, tc := range cases {
		status, kind := classify(&modelclient.HTTPError{StatusCode: tc.status})
		if status != tc.wantStatus || kind != tc.wantKind {
			t.Errorf("status %d: expected %d/%s, got %d/%s", tc.status, tc.wantStatus, tc.wantKind, status, kind)
		}
	}
}

func TestClassify_AlreadyClassifiedPreserved(t *testing.T) {
	err := domain.Classify("gateway", domain.KindInvariant, errors.New("boom"))
	status, kind := classify(err)
	if kind != domain.KindInvariant || status != http.StatusInternalServerError {
		t.Fatalf("expected invariant/500, got %s/%d", kind, status)
	}
}

func TestClassify_PlainErrorDefaultsBadGateway(t *testing.T) {
	status, kind := classify(errors.New("network blip"))
	if status != http.StatusBadGateway || kind != domain.KindTransient {
		t.Fatalf("expected 502/transient, got %d/%s", status, kind)
	}
}
