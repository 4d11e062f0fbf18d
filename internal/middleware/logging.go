package middleware

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/blogposts/pkg"
)

func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if log.IsLevelEnabled(log.TraceLevel) {
				ip, _ := pkg.ReadUserIP(r)
				log.WithFields(log.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"ua":     r.Header.Get("User-Agent"),
					"ip":     ip,
				}).Trace(" ====> request")
			}
			next.ServeHTTP(w, r)
		})
	}
}
