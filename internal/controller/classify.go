package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/intellx3/chatx3-web-ui/internal/models"
)

// StatusError reports a non-2xx response from the assistant backend. The raw
// body is kept for keyword classification.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("assistant endpoint returned status %d", e.StatusCode)
}

// Verdict is the classification of one failed send: the user-facing message,
// whether the same input may reasonably be attempted again, and the advisory
// health to record. An empty Health leaves the current health untouched.
type Verdict struct {
	Message   string
	Retryable bool
	Health    models.ServiceHealth
}

// User-facing failure messages. The product speaks French to its users, so
// these strings do too.
const (
	msgServiceTrouble  = "Le service IA rencontre des difficultés techniques."
	msgWorkflowDown    = "Le workflow IA est temporairement indisponible. Notre équipe technique a été notifiée."
	msgSlowResponse    = "Le service IA met trop de temps à répondre. Veuillez réessayer avec une question plus simple."
	msgKnowledgeBase   = "Problème de connexion à la base de connaissances. Veuillez réessayer dans quelques instants."
	msgOverloaded      = "Le service IA est temporairement surchargé. Veuillez réessayer dans quelques instants."
	msgDeadlineReached = "Le service IA a dépassé le délai maximum de traitement (10 minutes). " +
		"Veuillez réessayer avec une question plus courte ou plus spécifique."
	msgNetwork = "Problème de connexion réseau. Vérifiez votre connexion internet et réessayez."
)

// retryableBodyKeywords mark a raw error body as transient.
var retryableBodyKeywords = []string{"timeout", "temporary", "overload", "busy", "workflow"}

// retryableMessageKeywords mark a final user-facing message as retryable.
var retryableMessageKeywords = []string{"temporairement", "réessayer", "connexion", "workflow", "surchargé"}

// Classify maps a failed send to its user-facing message, retryability and
// advisory health. It is a pure function of the error: the same error always
// yields the same verdict.
func Classify(err error) Verdict {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return classifyStatus(statusErr)
	case errors.Is(err, context.DeadlineExceeded):
		return Verdict{Message: msgDeadlineReached, Retryable: true}
	case isNetworkError(err):
		return Verdict{Message: msgNetwork, Retryable: true, Health: models.HealthOffline}
	default:
		return Verdict{
			Message:   fmt.Sprintf("Erreur de communication: %v", err),
			Retryable: false,
		}
	}
}

func classifyStatus(err *StatusError) Verdict {
	switch err.StatusCode {
	case http.StatusInternalServerError:
		msg := msgServiceTrouble
		switch {
		case strings.Contains(err.Body, "Error in workflow"):
			msg = msgWorkflowDown
		case strings.Contains(err.Body, "timeout"):
			msg = msgSlowResponse
		case strings.Contains(err.Body, "database"), strings.Contains(err.Body, "connection"):
			msg = msgKnowledgeBase
		}
		return Verdict{Message: msg, Retryable: true, Health: models.HealthDegraded}
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return Verdict{Message: msgOverloaded, Retryable: true}
	default:
		msg := fmt.Sprintf("Erreur du service IA (%d). Veuillez contacter le support si le problème persiste.",
			err.StatusCode)
		return Verdict{
			Message:   msg,
			Retryable: retryableStatus(err.StatusCode, err.Body) || IsRetryableMessage(msg),
		}
	}
}

// retryableStatus reports whether a raw (status, body) pair indicates a
// transient failure.
func retryableStatus(status int, body string) bool {
	if status >= 500 && status <= 599 {
		return true
	}
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return true
	}
	lower := strings.ToLower(body)
	for _, keyword := range retryableBodyKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// IsRetryableMessage scans a final user-facing error message for the keywords
// marking a transient failure.
func IsRetryableMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, keyword := range retryableMessageKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
