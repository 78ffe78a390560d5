package controller_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/intellx3/chatx3-web-ui/internal/controller"
	"github.com/intellx3/chatx3-web-ui/internal/models"
)

func TestClassifyStatusErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantHealth    models.ServiceHealth
		wantContains  string
	}{
		{
			name:          "generic 500",
			status:        500,
			body:          "internal error",
			wantRetryable: true,
			wantHealth:    models.HealthDegraded,
			wantContains:  "difficultés techniques",
		},
		{
			name:          "workflow failure",
			status:        500,
			body:          `{"message":"Error in workflow"}`,
			wantRetryable: true,
			wantHealth:    models.HealthDegraded,
			wantContains:  "workflow IA",
		},
		{
			name:          "upstream timeout",
			status:        500,
			body:          "workflow timeout after 300s",
			wantRetryable: true,
			wantHealth:    models.HealthDegraded,
			wantContains:  "trop de temps",
		},
		{
			name:          "database failure",
			status:        500,
			body:          "database connection refused",
			wantRetryable: true,
			wantHealth:    models.HealthDegraded,
			wantContains:  "base de connaissances",
		},
		{
			name:          "bad gateway",
			status:        502,
			body:          "",
			wantRetryable: true,
			wantContains:  "surchargé",
		},
		{
			name:          "service unavailable",
			status:        503,
			body:          "",
			wantRetryable: true,
			wantContains:  "surchargé",
		},
		{
			name:          "gateway timeout",
			status:        504,
			body:          "",
			wantRetryable: true,
			wantContains:  "surchargé",
		},
		{
			name:          "rate limited",
			status:        429,
			body:          "too many requests",
			wantRetryable: true,
			wantContains:  "Erreur du service IA (429)",
		},
		{
			name:          "not found",
			status:        404,
			body:          "not found",
			wantRetryable: false,
			wantContains:  "Erreur du service IA (404)",
		},
		{
			name:          "bad request with transient body",
			status:        400,
			body:          "worker busy, try later",
			wantRetryable: true,
			wantContains:  "Erreur du service IA (400)",
		},
		{
			name:          "other 5xx",
			status:        507,
			body:          "",
			wantRetryable: true,
			wantContains:  "Erreur du service IA (507)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := controller.Classify(&controller.StatusError{StatusCode: tt.status, Body: tt.body})
			assert.Equal(t, tt.wantRetryable, verdict.Retryable)
			assert.Equal(t, tt.wantHealth, verdict.Health)
			assert.Contains(t, verdict.Message, tt.wantContains)
		})
	}
}

func TestClassifyTimeout(t *testing.T) {
	err := fmt.Errorf("error sending request: %w", context.DeadlineExceeded)
	verdict := controller.Classify(err)
	assert.True(t, verdict.Retryable)
	assert.Contains(t, verdict.Message, "délai maximum")
	assert.Empty(t, verdict.Health)
}

func TestClassifyNetworkError(t *testing.T) {
	err := fmt.Errorf("error sending request: %w", &net.OpError{
		Op:  "dial",
		Err: errors.New("connection refused"),
	})
	verdict := controller.Classify(err)
	assert.True(t, verdict.Retryable)
	assert.Contains(t, verdict.Message, "connexion réseau")
	assert.Equal(t, models.HealthOffline, verdict.Health)
}

func TestClassifyUnknownError(t *testing.T) {
	verdict := controller.Classify(errors.New("some bug"))
	assert.False(t, verdict.Retryable)
	assert.Contains(t, verdict.Message, "Erreur de communication")
	assert.Empty(t, verdict.Health)
}

func TestClassifyDeterministic(t *testing.T) {
	errs := []error{
		&controller.StatusError{StatusCode: 500, Body: "Error in workflow"},
		&controller.StatusError{StatusCode: 404, Body: "nope"},
		fmt.Errorf("wrapped: %w", context.DeadlineExceeded),
		errors.New("boom"),
	}
	for _, err := range errs {
		first := controller.Classify(err)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, controller.Classify(err))
		}
	}
}

func TestIsRetryableMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Le service est temporairement indisponible", true},
		{"Veuillez réessayer dans quelques instants", true},
		{"Problème de connexion à la base", true},
		{"Le workflow a échoué", true},
		{"Le service est surchargé", true},
		{"Accès refusé", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, controller.IsRetryableMessage(tt.msg), tt.msg)
	}
}
