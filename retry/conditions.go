package retry

import (
	"errors"
	"net"
	"slices"

	wqerrors "github.com/kbukum/webquery/errors"
	"github.com/kbukum/webquery/query"
)

// OnNetworkError retries connection-level failures.
func OnNetworkError() Condition {
	return Condition{
		Name: "network_error",
		Exception: func(err error) bool {
			if wqerrors.IsCode(err, wqerrors.ErrCodeTransport) {
				return true
			}
			var netErr net.Error
			return errors.As(err, &netErr)
		},
	}
}

// OnTimeout retries exchanges aborted by their watchdog.
func OnTimeout() Condition {
	return Condition{
		Name: "timeout",
		Exception: func(err error) bool {
			return wqerrors.IsCode(err, wqerrors.ErrCodeTimeout)
		},
		Outcome: func(o *query.Outcome) bool { return o.TimedOut },
	}
}

// OnStatus retries outcomes whose status is one of codes.
func OnStatus(codes ...int) Condition {
	return Condition{
		Name: "status",
		Outcome: func(o *query.Outcome) bool {
			return slices.Contains(codes, o.StatusCode)
		},
	}
}

// OnServerError retries 5xx outcomes and 429 Too Many Requests.
func OnServerError() Condition {
	return Condition{
		Name: "server_error",
		Outcome: func(o *query.Outcome) bool {
			return o.StatusCode >= 500 || o.StatusCode == 429
		},
	}
}

// Always retries every completed attempt until the budget runs out.
func Always() Condition {
	return Condition{
		Name:    "always",
		Outcome: func(*query.Outcome) bool { return true },
	}
}

// Exception wraps a custom error predicate.
func Exception(name string, fn func(error) bool) Condition {
	return Condition{Name: name, Exception: fn}
}

// Outcome wraps a custom outcome predicate.
func Outcome(name string, fn func(*query.Outcome) bool) Condition {
	return Condition{Name: name, Outcome: fn}
}
