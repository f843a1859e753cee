package audit

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionFor(t *testing.T) {
	tests := []struct {
		endpoint, method, want string
	}{
		{"/subirUsuario", "POST", "Creación de usuario"},
		{"/subirUsuario", "OPTIONS", "Creación de usuario"},
		{"/compararCara", "POST", "Intento de acceso via rostro"},
		{"/usuarios", "GET", "Consulta de usuario(s)"},
		{"/usuarios/7", "GET", "Consulta de usuario(s)"},
		{"/usuarios/7", "PUT", "Actualización de usuario"},
		{"/usuarios/7", "DELETE", "Eliminación de usuario"},
		{"/usuarios/7", "PATCH", "Request a /usuarios/7"},
		{"/historial", "GET", "Consulta de historial"},
		{"/login", "POST", "Request a /login"},
		{"/imagenes/usuarios/a.jpg", "GET", "Request a /imagenes/usuarios/a.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.want, ActionFor(tt.endpoint, tt.method))
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "10.0.0.5:51234", nil, "10.0.0.5"},
		{"remote addr without port", "10.0.0.5", nil, "10.0.0.5"},
		{"forwarded first hop", "10.0.0.5:1", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"real ip", "10.0.0.5:1", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"forwarded wins over real ip", "10.0.0.5:1", map[string]string{
			"X-Forwarded-For": "203.0.113.7",
			"X-Real-IP":       "198.51.100.2",
		}, "203.0.113.7"},
		{"ipv6", "[::1]:8000", nil, "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}
