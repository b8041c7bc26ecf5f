// Copyright 2026 The Harvestd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package access holds the tenant visibility policy.
//
// Visible is the single source of truth for whether a dataset (and, through
// the parent dataset, its jobs and items) can be seen by a tenant. Every
// read path applies this predicate; none re-derives it. Absence of access
// is reported to callers as "not found", never as "forbidden", so the
// existence of private datasets does not leak across tenants.
package access

// Visible reports whether a dataset owned by ownerTenantID is visible to
// tenantID. A nil owner means the dataset is shared and visible to all
// tenants.
func Visible(ownerTenantID *string, tenantID string) bool {
	return ownerTenantID == nil || *ownerTenantID == tenantID
}

// Owns reports whether tenantID is the exclusive owner of the dataset.
// Shared datasets have no owner.
func Owns(ownerTenantID *string, tenantID string) bool {
	return ownerTenantID != nil && *ownerTenantID == tenantID
}
