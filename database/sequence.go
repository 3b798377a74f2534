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

package database

import (
	"context"

	"github.com/blnkfinance/regpay/internal/apierror"
)

// NextID allocates the next value of seq. Values are unique but not gap free:
// a rolled back transaction simply burns the number it drew.
func (d Datasource) NextID(ctx context.Context, seq Sequence) (int64, error) {
	var id int64
	err := d.Conn.QueryRowContext(ctx, `SELECT nextval($1::regclass)`, string(seq)).Scan(&id)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to allocate identifier", err)
	}
	return id, nil
}
