// Package common contains shared constants, sentinel errors and small helpers
// used across sitekeeper components.
package common

import "time"

// AccessTokenHeaderName is the gRPC metadata key used to carry the access
// token on calls to the identity decision service.
const AccessTokenHeaderName = "access_token"

// MinPasswordLength is the shortest accepted new password, in bytes.
const MinPasswordLength = 8

// MaxPasswordLength bounds every password the services hash, in bytes. The
// HTTP request validators carry the same limit.
const MaxPasswordLength = 128

// ResetTokenBytes is the amount of entropy in a password-reset token.
const ResetTokenBytes = 32

// ResetTokenValidity is how long an issued password-reset token stays redeemable.
const ResetTokenValidity = time.Hour
