package audit

import (
	"net"
	"net/http"
	"strings"
)

// ActionFor describes a request in the request history. The strings are
// part of the stored history format and must not change.
func ActionFor(endpoint, method string) string {
	switch {
	case endpoint == "/subirUsuario":
		return "Creación de usuario"
	case endpoint == "/compararCara":
		return "Intento de acceso via rostro"
	case strings.HasPrefix(endpoint, "/usuarios") && method == http.MethodGet:
		return "Consulta de usuario(s)"
	case strings.HasPrefix(endpoint, "/usuarios") && method == http.MethodPut:
		return "Actualización de usuario"
	case strings.HasPrefix(endpoint, "/usuarios") && method == http.MethodDelete:
		return "Eliminación de usuario"
	case endpoint == "/historial":
		return "Consulta de historial"
	default:
		return "Request a " + endpoint
	}
}

// ClientIP returns the caller address: the first X-Forwarded-For hop,
// then X-Real-IP, then the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
