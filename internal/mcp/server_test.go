package mcp

import (
	"errors"
	"log/slog"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/memsvc/memory/internal/apperr"
)

func testServer() *Server {
	return &Server{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestErrorToRPC_UnknownTool(t *testing.T) {
	s := testServer()
	rpcErr := s.errorToRPC("bogus_tool", errUnknownTool("bogus_tool"))
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestErrorToRPC_CategoryMapping(t *testing.T) {
	s := testServer()

	cases := []struct {
		err  error
		code int
	}{
		{apperr.InvalidParamsf("bad input"), -32602},
		{apperr.NotFoundf("missing"), -32001},
		{apperr.Conflictf("dup"), -32002},
		{apperr.Transientf(errors.New("down"), "embed"), -32003},
		{apperr.Logicf("consolidation needs 2+ memories"), -32004},
	}
	for _, tc := range cases {
		rpcErr := s.errorToRPC("memory_store", tc.err)
		assert.Equal(t, tc.code, rpcErr.Code)
	}
}

func TestErrorToRPC_UnrecognizedFallsBackToInternal(t *testing.T) {
	s := testServer()
	rpcErr := s.errorToRPC("memory_store", errors.New("boom"))
	assert.Equal(t, -32603, rpcErr.Code)
	assert.Equal(t, "internal error", rpcErr.Message)
}
