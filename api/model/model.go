/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import (
	"errors"

	"github.com/blnkfinance/regpay"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func payloadRequired(value interface{}) error {
	payload, _ := value.(map[string]interface{})
	if len(payload) == 0 {
		return errors.New("cannot be blank")
	}
	return nil
}

func (d *CreateDraft) ValidateCreateDraft() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.AccountID, validation.Required),
		validation.Field(&d.Payload, validation.By(payloadRequired)),
	)
}

func (d *UpdateDraft) ValidateUpdateDraft() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Payload, validation.By(payloadRequired)),
	)
}

// ValidateSubmitRegistration needs either an existing draft number or a payload
// to create a draft from.
func (s *SubmitRegistration) ValidateSubmitRegistration() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.AccountID, validation.When(s.DraftNumber == "", validation.Required)),
		validation.Field(&s.Payload, validation.When(s.DraftNumber == "", validation.By(payloadRequired))),
	)
}

func (s *SubmitSearch) ValidateSubmitSearch() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.AccountID, validation.Required),
		validation.Field(&s.Query, validation.By(payloadRequired)),
	)
}

func (r *RejectReview) ValidateRejectReview() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Reason, validation.Required, validation.Length(1, 500)),
	)
}

func (s *SubmitRegistration) ToRegistrationRequest() regpay.RegistrationRequest {
	return regpay.RegistrationRequest{DraftNumber: s.DraftNumber, Payload: s.Payload, AccountID: s.AccountID, UserID: s.UserID}
}

func (s *SubmitSearch) ToSearchRequest() regpay.SearchRequest {
	return regpay.SearchRequest{Query: s.Query, AccountID: s.AccountID, ClientReference: s.ClientReference}
}
