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

// Package agentserver accepts requests on a Unix filesystem socket and
// routes them to the vc, didcomm and did/sidetree services, the same
// http.Server/ServeMux construction the teacher uses for its health
// endpoint (pkg/health/server.go), but bound to a net.Listener supplied
// by the caller instead of a TCP port — that listener is either a fresh
// Unix socket or one inherited across a handoff.
package agentserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sage-x-project/sage/did/sidetree"
	"github.com/sage-x-project/sage/didcomm"
	"github.com/sage-x-project/sage/internal/logger"
	"github.com/sage-x-project/sage/keyring"
	"github.com/sage-x-project/sage/vc"
)

// VersionController is implemented by the controller side so the agent
// server can forward the two internal version verbs without importing
// the controller package directly.
type VersionController interface {
	GetVersion(ctx context.Context) (string, error)
	TriggerUpdate(ctx context.Context, binaryURL, path string) error
}

// NetworkProbe answers the controller-only connectivity check.
type NetworkProbe interface {
	Probe(ctx context.Context) error
}

// Server is the agent's request/response surface (spec §4.6, §6).
type Server struct {
	keyring  *keyring.Keyring
	resolver sidetree.Resolver
	version  VersionController
	network  NetworkProbe
	logger   logger.Logger
	server   *http.Server
}

// New builds a Server. version and network may be nil, in which case
// the internal/* verbs respond with CodeInternal.
func New(kr *keyring.Keyring, resolver sidetree.Resolver, version VersionController, network NetworkProbe, log logger.Logger) *Server {
	return &Server{keyring: kr, resolver: resolver, version: version, network: network, logger: log}
}

// Serve runs the HTTP server over listener until the context is
// cancelled, then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/identifiers", s.handleIdentifiersCreate)
	mux.HandleFunc("/identifiers/", s.handleIdentifierGet)
	mux.HandleFunc("/create-verifiable-message", s.handleCreateVerifiableMessage)
	mux.HandleFunc("/verify-verifiable-message", s.handleVerifyVerifiableMessage)
	mux.HandleFunc("/create-didcomm-message", s.handleCreateDidCommMessage)
	mux.HandleFunc("/verify-didcomm-message", s.handleVerifyDidCommMessage)
	mux.HandleFunc("/internal/version/get", s.handleVersionGet)
	mux.HandleFunc("/internal/version/update", s.handleVersionUpdate)
	mux.HandleFunc("/internal/network", s.handleNetwork)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleIdentifiersCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, NewError(CodeMissingMessage))
		return
	}
	doc, err := s.resolver.CreateIdentifier(r.Context(), s.keyring)
	if err != nil {
		s.logger.Error("create identifier failed", logger.String("error", err.Error()))
		writeError(w, NewError(CodeSidetreeFailed))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleIdentifierGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, NewError(CodeMissingMessage))
		return
	}
	did := strings.TrimPrefix(r.URL.Path, "/identifiers/")
	if did == "" {
		writeError(w, NewError(CodeInvalidDID))
		return
	}
	doc, err := s.resolver.FindIdentifier(r.Context(), did)
	if err != nil {
		if errors.Is(err, sidetree.ErrNotFound) {
			writeError(w, NewError(CodeDIDNotFound))
			return
		}
		s.logger.Error("resolve identifier failed", logger.String("error", err.Error()))
		writeError(w, NewError(CodeSidetreeFailed))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCreateVerifiableMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DestinationDID == "" {
		writeError(w, NewError(CodeMissingDestinationDID))
		return
	}
	if req.Message == "" {
		writeError(w, NewError(CodeMissingMessage))
		return
	}

	myDID, err := s.keyring.GetIdentifier()
	if err != nil {
		writeError(w, NewError(CodeInternal))
		return
	}

	subject := messageSubject{Container: MessageContainer{
		DestinationDID: req.DestinationDID,
		OperationTag:   req.OperationTag,
		Payload:        req.Message,
	}}

	credential, err := vc.Generate(myDID, s.keyring, subject, time.Now())
	if err != nil {
		s.logger.Error("generate vc failed", logger.String("error", err.Error()))
		writeError(w, NewError(CodeInternal))
		return
	}
	writeJSON(w, http.StatusOK, credential)
}

func (s *Server) handleVerifyVerifiableMessage(w http.ResponseWriter, r *http.Request) {
	var req verifyMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var credential vc.Credential
	if err := json.Unmarshal([]byte(req.Message), &credential); err != nil {
		writeError(w, NewError(CodeMissingMessage))
		return
	}

	verified, err := vc.Verify(r.Context(), s.resolver, &credential, time.Now())
	if err != nil {
		s.respondVCError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verified)
}

func (s *Server) handleCreateDidCommMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DestinationDID == "" {
		writeError(w, NewError(CodeMissingDestinationDID))
		return
	}
	if req.Message == "" {
		writeError(w, NewError(CodeMissingMessage))
		return
	}

	myDID, err := s.keyring.GetIdentifier()
	if err != nil {
		writeError(w, NewError(CodeInternal))
		return
	}

	subject := messageSubject{Container: MessageContainer{
		DestinationDID: req.DestinationDID,
		OperationTag:   req.OperationTag,
		Payload:        req.Message,
	}}

	credential, err := vc.Generate(myDID, s.keyring, subject, time.Now())
	if err != nil {
		s.logger.Error("generate vc failed", logger.String("error", err.Error()))
		writeError(w, NewError(CodeInternal))
		return
	}

	envelope, err := didcomm.Generate(r.Context(), s.resolver, credential, s.keyring, req.DestinationDID, nil)
	if err != nil {
		s.respondDidCommError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

func (s *Server) handleVerifyDidCommMessage(w http.ResponseWriter, r *http.Request) {
	var req verifyMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var envelope didcomm.Envelope
	if err := json.Unmarshal([]byte(req.Message), &envelope); err != nil {
		writeError(w, NewError(CodeMissingMessage))
		return
	}

	credential, err := didcomm.Verify(r.Context(), s.resolver, &envelope, s.keyring, time.Now())
	if err != nil {
		s.respondDidCommError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, credential)
}

func (s *Server) handleVersionGet(w http.ResponseWriter, r *http.Request) {
	if s.version == nil {
		writeError(w, NewError(CodeInternal))
		return
	}
	version, err := s.version.GetVersion(r.Context())
	if err != nil {
		writeError(w, NewError(CodeInternal))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleVersionUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BinaryURL string `json:"binary_url"`
		Path      string `json:"path"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BinaryURL == "" {
		writeError(w, NewError(CodeMissingBinaryURL))
		return
	}
	if req.Path == "" {
		writeError(w, NewError(CodeMissingPath))
		return
	}
	if s.version == nil {
		writeError(w, NewError(CodeInternal))
		return
	}
	if err := s.version.TriggerUpdate(r.Context(), req.BinaryURL, req.Path); err != nil {
		writeError(w, NewError(CodeInternal))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	if s.network == nil {
		writeError(w, NewError(CodeInternal))
		return
	}
	if err := s.network.Probe(r.Context()); err != nil {
		writeError(w, NewError(CodeNetworkInternal))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) respondVCError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vc.ErrExpired):
		writeError(w, NewError(CodeExpired))
	case errors.Is(err, vc.ErrMissingSigningKey):
		writeError(w, NewError(CodePublicKeyNotFound))
	case errors.Is(err, vc.ErrInvalidProof):
		writeError(w, NewError(CodeVerifyFailed))
	default:
		s.logger.Error("verify vc failed", logger.String("error", err.Error()))
		writeError(w, NewError(CodeInternal))
	}
}

func (s *Server) respondDidCommError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, didcomm.ErrNotAddressedToMe):
		writeError(w, NewError(CodeNotAddressedToMe))
	case errors.Is(err, didcomm.ErrDidPublicKeyNotFound):
		writeError(w, NewError(CodePublicKeyNotFound))
	case errors.Is(err, didcomm.ErrDecryptFailed):
		writeError(w, NewError(CodeDecryptFailed))
	case errors.Is(err, didcomm.ErrSidetreeFindRequestFailed):
		writeError(w, NewError(CodeSidetreeFailed))
	case errors.Is(err, didcomm.ErrMetadataBodyNotFound):
		writeError(w, NewError(CodePublicKeyNotFound))
	case errors.Is(err, vc.ErrExpired), errors.Is(err, vc.ErrInvalidProof), errors.Is(err, vc.ErrMissingSigningKey):
		s.respondVCError(w, err)
	default:
		s.logger.Error("didcomm operation failed", logger.String("error", err.Error()))
		writeError(w, NewError(CodeInternal))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, NewError(CodeMissingMessage))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(e)
}
