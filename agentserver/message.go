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

// MessageContainer is the credential_subject payload wrapped by both
// verifiable-message and didcomm-message creation (spec §8 scenario 1:
// "credential_subject.container.payload").
type MessageContainer struct {
	DestinationDID string `json:"destination_did"`
	OperationTag   string `json:"operation_tag"`
	Payload        string `json:"payload"`
}

type messageSubject struct {
	Container MessageContainer `json:"container"`
}

type createMessageRequest struct {
	DestinationDID string `json:"destination_did"`
	Message        string `json:"message"`
	OperationTag   string `json:"operation_tag"`
}

type verifyMessageRequest struct {
	Message string `json:"message"`
}
