// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import "github.com/olegiv/reservo/internal/model"

// DefaultRetentionDays applies when neither a category-scoped nor a
// level-only policy matches.
const DefaultRetentionDays = 90

// PolicySet is the immutable retention configuration: level-only defaults
// plus category-scoped overrides. Built once at process start.
type PolicySet struct {
	levelPolicies    []model.RetentionPolicy
	categoryPolicies []model.RetentionPolicy
}

// NewPolicySet builds a PolicySet from explicit tables.
func NewPolicySet(levelPolicies, categoryPolicies []model.RetentionPolicy) PolicySet {
	return PolicySet{
		levelPolicies:    levelPolicies,
		categoryPolicies: categoryPolicies,
	}
}

// DefaultPolicySet returns the production retention configuration.
func DefaultPolicySet() PolicySet {
	return NewPolicySet(
		[]model.RetentionPolicy{
			{Level: model.LevelDebug, RetentionDays: 7, Description: "Debug logs kept one week"},
			{Level: model.LevelInfo, RetentionDays: 30, Description: "Info logs kept one month"},
			{Level: model.LevelWarn, RetentionDays: 90, Description: "Warnings kept one quarter"},
			{Level: model.LevelError, RetentionDays: 180, Description: "Errors kept six months"},
			{Level: model.LevelCritical, RetentionDays: 365, Description: "Critical logs kept one year"},
		},
		[]model.RetentionPolicy{
			{Level: model.LevelInfo, Category: model.CategoryAuditTrail, RetentionDays: 2555, Description: "Audit trail kept seven years for compliance"},
			{Level: model.LevelInfo, Category: model.CategoryPayment, RetentionDays: 2555, Description: "Payment records kept seven years for compliance"},
			{Level: model.LevelInfo, Category: model.CategorySecurity, RetentionDays: 365, Description: "Security events kept one year"},
			{Level: model.LevelInfo, Category: model.CategoryAuthentication, RetentionDays: 90, Description: "Authentication logs kept one quarter"},
			{Level: model.LevelInfo, Category: model.CategoryAPIRequest, RetentionDays: 30, Description: "Request logs kept one month"},
			{Level: model.LevelInfo, Category: model.CategoryPerformance, RetentionDays: 30, Description: "Performance metrics kept one month"},
		},
	)
}

// Resolve returns the retention period in days for a (level, category) pair.
// An exact category-scoped match wins over the level default; with neither
// present the hard-coded default applies.
func (p PolicySet) Resolve(level, category string) int {
	if category != "" {
		for _, policy := range p.categoryPolicies {
			if policy.Level == level && policy.Category == category {
				return policy.RetentionDays
			}
		}
	}
	for _, policy := range p.levelPolicies {
		if policy.Level == level {
			return policy.RetentionDays
		}
	}
	return DefaultRetentionDays
}

// All returns every policy, level-only first then category-scoped. The
// cleanup loop runs each of them; deduplication is not required.
func (p PolicySet) All() []model.RetentionPolicy {
	all := make([]model.RetentionPolicy, 0, len(p.levelPolicies)+len(p.categoryPolicies))
	all = append(all, p.levelPolicies...)
	all = append(all, p.categoryPolicies...)
	return all
}
