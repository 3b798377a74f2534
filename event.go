package regpay

import (
	"context"
	"errors"

	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
	"github.com/sirupsen/logrus"
)

// track appends an event tracker entry. Tracking never fails the caller; a
// failed append is logged and dropped.
func (r *Regpay) track(ctx context.Context, invoiceID, eventType string, statusCode int, message string) {
	if invoiceID == "" {
		return
	}
	err := r.datasource.AppendEvent(ctx, &model.EventTracking{
		KeyID:      invoiceID,
		Type:       eventType,
		StatusCode: statusCode,
		Message:    message,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"invoice_id": invoiceID,
			"event_type": eventType,
		}).WithError(err).Error("failed to append payment event")
	}
}

// trackError records err against invoiceID with the HTTP status it maps to.
func (r *Regpay) trackError(ctx context.Context, invoiceID string, err error) {
	code := model.DefaultErrorCode
	if _, ok := asAPIError(err); ok {
		code = apierror.MapErrorToHTTPStatus(err)
	}
	r.track(ctx, invoiceID, model.EventCallbackError, code, err.Error())
}

func asAPIError(err error) (apierror.APIError, bool) {
	var apiErr apierror.APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// GetPaymentEvents lists the tracked events of an invoice, oldest first.
func (r *Regpay) GetPaymentEvents(ctx context.Context, invoiceID string) ([]model.EventTracking, error) {
	return r.datasource.GetEvents(ctx, invoiceID)
}
