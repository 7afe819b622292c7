// Package shared holds the error kinds used across the service.
//
// Lower layers return plain errors or mark them with MarkKind; the HTTP
// adapter turns KindOf(err) into a status code:
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//	    return http.StatusNotFound
//	case shared.KindDependencyFailure:
//	    return http.StatusServiceUnavailable
//	}
package shared
