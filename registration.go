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

package regpay

import (
	"context"

	"github.com/blnkfinance/regpay/model"
	"github.com/sirupsen/logrus"
)

func registrationCacheKey(number string) string {
	return "regpay:registration:" + number
}

// GetRegistration finds a registration and its children by registration
// number. Registrations never change after commit, so they are read through
// the cache when one is configured. Cache failures fall back to the datasource.
func (r *Regpay) GetRegistration(ctx context.Context, number string) (*model.Registration, error) {
	key := registrationCacheKey(number)
	if r.cache != nil {
		var cached model.Registration
		found, err := r.cache.Get(ctx, key, &cached)
		if err != nil {
			logrus.WithField("registration_number", number).WithError(err).Warn("registration cache read failed")
		}
		if found {
			return &cached, nil
		}
	}

	reg, err := r.datasource.GetRegistrationByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, reg, r.cacheTTL); err != nil {
			logrus.WithField("registration_number", number).WithError(err).Warn("registration cache write failed")
		}
	}
	return reg, nil
}
