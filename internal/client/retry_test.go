package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func policyDelays(p RetryPolicy) []time.Duration {
	delays := make([]time.Duration, 0, p.MaxRetries)
	for n := 0; n < p.MaxRetries; n++ {
		delays = append(delays, p.Delay(n))
	}
	return delays
}

func TestDefaultPolicies_Table(t *testing.T) {
	ms := time.Millisecond
	policies := DefaultPolicies()

	tests := []struct {
		outcome Outcome
		want    []time.Duration
	}{
		{OutcomeNetworkError, []time.Duration{2000 * ms, 4000 * ms, 6000 * ms, 8000 * ms, 8000 * ms}},
		{OutcomeNotFound, []time.Duration{1000 * ms, 2000 * ms, 3000 * ms, 4000 * ms, 5000 * ms, 6000 * ms}},
		{OutcomeAuthAmbiguous, []time.Duration{1500 * ms, 1500 * ms, 1500 * ms}},
		{OutcomeServerError, []time.Duration{1500 * ms, 3000 * ms, 4500 * ms, 6000 * ms}},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			p, ok := policies[tt.outcome]
			if !ok {
				t.Fatalf("%s の再試行ポリシーが定義されていない", tt.outcome)
			}
			if diff := cmp.Diff(tt.want, policyDelays(p)); diff != "" {
				t.Errorf("待機時間が一致しない (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDefaultPolicies_NoRetryClasses(t *testing.T) {
	policies := DefaultPolicies()
	for _, o := range []Outcome{OutcomeAuthConfirmed, OutcomeParseError, OutcomeUnexpected, OutcomeSuccess} {
		if p, ok := policies[o]; ok && p.MaxRetries > 0 {
			t.Errorf("%s は再試行してはならない: MaxRetries = %d", o, p.MaxRetries)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Outcome
	}{
		{"200", http.StatusOK, `{}`, OutcomeSuccess},
		{"404", http.StatusNotFound, `{"error":"Profile not found"}`, OutcomeNotFound},
		{"401 コード付き期限切れ", http.StatusUnauthorized, `{"error":"Token expired","code":"TOKEN_EXPIRED"}`, OutcomeAuthConfirmed},
		{"401 コード付き無効", http.StatusUnauthorized, `{"error":"Unauthorized","code":"TOKEN_INVALID"}`, OutcomeAuthConfirmed},
		{"401 トークンなしは曖昧", http.StatusUnauthorized, `{"error":"Missing auth token","code":"MISSING_TOKEN"}`, OutcomeAuthAmbiguous},
		{"403 FORBIDDENは曖昧", http.StatusForbidden, `{"error":"Forbidden","code":"FORBIDDEN"}`, OutcomeAuthAmbiguous},
		{"401 旧形式 invalid", http.StatusUnauthorized, `{"error":"Invalid JWT"}`, OutcomeAuthConfirmed},
		{"401 旧形式 expired", http.StatusUnauthorized, `{"error":"JWT EXPIRED"}`, OutcomeAuthConfirmed},
		{"401 旧形式 その他", http.StatusUnauthorized, `{"error":"Unauthorized"}`, OutcomeAuthAmbiguous},
		{"403 非JSON", http.StatusForbidden, `gateway said no`, OutcomeAuthAmbiguous},
		{"403 非JSON invalid", http.StatusForbidden, `invalid session`, OutcomeAuthConfirmed},
		{"500", http.StatusInternalServerError, ``, OutcomeServerError},
		{"503", http.StatusServiceUnavailable, ``, OutcomeServerError},
		{"400", http.StatusBadRequest, `{"error":"Missing userId"}`, OutcomeUnexpected},
		{"429", http.StatusTooManyRequests, ``, OutcomeUnexpected},
		{"204", http.StatusNoContent, ``, OutcomeUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status, []byte(tt.body)); got != tt.want {
				t.Errorf("Classify(%d, %q) = %s, want %s", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

func TestIsConfirmedAuthFailure_CodeTakesPrecedence(t *testing.T) {
	// コードがある場合はメッセージの文言に関わらずコードで判定する
	if IsConfirmedAuthFailure("FORBIDDEN", "invalid access") {
		t.Error("FORBIDDENはメッセージにinvalidを含んでも確定扱いにしない")
	}
	if !IsConfirmedAuthFailure("TOKEN_EXPIRED", "") {
		t.Error("TOKEN_EXPIREDは確定扱いにする")
	}
	if IsConfirmedAuthFailure("", "") {
		t.Error("コードもメッセージもない場合は確定扱いにしない")
	}
}
