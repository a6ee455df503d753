package handlers_test

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"kantin/internal/http/handlers"
)

func TestLoginThrottle(t *testing.T) {
	ta := newTestApp(t, func(d *handlers.Deps) { d.LoginMax = 2 })
	cl := ta.client(t)

	for i := 0; i < 2; i++ {
		resp := cl.postForm("/login", "nik=14220148&password=salah")
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "attempt %d", i)
	}
	var code int
	logs := captureLogs(t, func() {
		code = cl.postForm("/login", "nik=14220148&password=123456").StatusCode
	})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.NotNil(t, findLog(logs, "rate.login.hit"))
}

func TestProofThrottle(t *testing.T) {
	ta := newTestApp(t, func(d *handlers.Deps) { d.ProofMax = 1 })
	cl := ta.client(t)

	// wrong state, but still counted
	assert.Equal(t, http.StatusConflict, cl.postFile(kapi+"/proof", "proof", pngBytes(t), nil).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, cl.postFile(kapi+"/proof", "proof", pngBytes(t), nil).StatusCode)
}

func TestOversizedProofRejected(t *testing.T) {
	ta := newTestApp(t)
	cl := ta.client(t)
	toPayment(t, cl)

	big := append(pngBytes(t), bytes.Repeat([]byte{0}, handlers.MaxUpload)...)
	resp := cl.postFile(kapi+"/proof", "proof", big, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	s := kiosk(t, cl.get(kapi+"/session"), http.StatusOK)
	assert.Equal(t, "payment", s.Session.State)
}
