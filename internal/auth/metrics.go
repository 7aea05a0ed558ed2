package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	otpAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_otp_attempts_total",
		Help: "OTP verification attempts by outcome.",
	}, []string{"outcome"})
)
