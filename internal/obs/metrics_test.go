package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInstrumentPreservesStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestObserveSettlementDoesNotPanic(t *testing.T) {
	ObserveSettlement("unlock", "ok", 5_000_000)
	ObserveSettlement("tip", "amount_mismatch", 0)
}

func TestLoggerSingleton(t *testing.T) {
	if Logger() == nil {
		t.Fatal("nil logger")
	}
	if Logger() != Logger() {
		t.Fatal("logger not shared")
	}
}
