package api

import "github.com/mealplanhq/subgate/pkg/billing"

// messageResponse is the body for bootstrap outcomes.
type messageResponse struct {
	Message string `json:"message"`
}

// errorResponse is the body for all error outcomes.
type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse is the body for GET /subscription-status. Subscription is
// null when the user has no profile row yet.
type statusResponse struct {
	Subscription interface{} `json:"subscription"`
}

// subscriptionResponse is the body for plan-change and unsubscribe outcomes.
type subscriptionResponse struct {
	Subscription *billing.Subscription `json:"subscription"`
}

// changePlanRequest is the body for POST /change-plan.
type changePlanRequest struct {
	NewPlan string `json:"newPlan"`
}
