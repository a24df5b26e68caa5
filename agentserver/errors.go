// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package agentserver

import "net/http"

// Code is a stable numeric failure class. Its thousands digit selects the
// HTTP status a Error maps to: 1xxx->400, 2xxx->403, 3xxx->401, 4xxx->404,
// 5xxx->500.
type Code int

const (
	CodeMissingDestinationDID Code = 1001
	CodeMissingMessage        Code = 1002
	CodeInvalidDID            Code = 1003
	CodeMissingBinaryURL      Code = 1004
	CodeMissingPath           Code = 1005

	CodeNotAddressedToMe Code = 2001

	CodeVerifyFailed   Code = 3001
	CodeDecryptFailed  Code = 3002
	CodeExpired        Code = 3003

	CodeDIDNotFound       Code = 4001
	CodePublicKeyNotFound Code = 4002
	CodeBackupNotFound    Code = 4003

	CodeInternal        Code = 5001
	CodeSidetreeFailed  Code = 5002
	CodeNetworkInternal Code = 5003
)

// messages gives each Code a fixed, caller-facing description, following
// the teacher original's one-message-per-variant convention; internal
// codes always report a generic message regardless of the underlying
// cause (spec §7: "never leaked beyond a generic Internal Server Error").
var messages = map[Code]string{
	CodeMissingDestinationDID: "destination_did is required",
	CodeMissingMessage:        "message is required",
	CodeInvalidDID:            "invalid did",
	CodeMissingBinaryURL:      "binary_url is required",
	CodeMissingPath:           "path is required",
	CodeNotAddressedToMe:      "message is not addressed to this did",
	CodeVerifyFailed:          "verify failed",
	CodeDecryptFailed:         "decrypt failed",
	CodeExpired:               "expired",
	CodeDIDNotFound:           "target DID not found",
	CodePublicKeyNotFound:     "cannot find public key",
	CodeBackupNotFound:        "backup not found",
	CodeInternal:              "Internal Server Error",
	CodeSidetreeFailed:        "Internal Server Error",
	CodeNetworkInternal:       "Internal Server Error",
}

// Error is the JSON body returned for any failed request.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// NewError builds an Error for code using its fixed message.
func NewError(code Code) *Error {
	return &Error{Code: code, Message: messages[code]}
}

// HTTPStatus maps an Error's code to the HTTP status spec §6 assigns to
// its thousands range.
func (e *Error) HTTPStatus() int {
	switch {
	case e.Code >= 1000 && e.Code < 2000:
		return http.StatusBadRequest
	case e.Code >= 2000 && e.Code < 3000:
		return http.StatusForbidden
	case e.Code >= 3000 && e.Code < 4000:
		return http.StatusUnauthorized
	case e.Code >= 4000 && e.Code < 5000:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
