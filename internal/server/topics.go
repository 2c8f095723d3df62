// -------------------------------------------------------------------------------
// Topic Handlers - Produce and Topic Listing
//
// Author: Alex Freidah
//
// Handlers for the produce and topic-listing operations. Both fetch the
// caller's broker client from the cache; record payloads are JSON with
// base64-encoded keys and values, and produce responses report per-record
// partitions and offsets in request order.
// -------------------------------------------------------------------------------

package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/afreidah/kafka-rest-proxy/internal/auth"
	"github.com/twmb/franz-go/pkg/kgo"
)

// -------------------------------------------------------------------------
// REQUEST / RESPONSE TYPES
// -------------------------------------------------------------------------

// produceRequest is the JSON body of POST /topics/{topic}.
type produceRequest struct {
	Records []produceRecord `json:"records"`
}

// produceRecord is a single record to produce. Key and Value are base64.
// Partition is optional; -1 or absent lets the broker client pick.
type produceRecord struct {
	Key       string `json:"key,omitempty"`
	Value     string `json:"value"`
	Partition *int32 `json:"partition,omitempty"`
}

// produceResponse reports one offset entry per produced record, in request
// order.
type produceResponse struct {
	Offsets []recordOffset `json:"offsets"`
}

// recordOffset is the outcome for one record. ErrorCode is zero on success.
type recordOffset struct {
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
	ErrorCode int    `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// topicsResponse is the JSON body of GET /topics.
type topicsResponse struct {
	Topics []string `json:"topics"`
}

// -------------------------------------------------------------------------
// HANDLERS
// -------------------------------------------------------------------------

// handleProduce translates a JSON record batch into a synchronous broker
// produce. Returns the HTTP status written and any handler error for
// tracing; per-record broker failures are reported in the response body,
// not as a request-level error.
func (s *Server) handleProduce(ctx context.Context, w http.ResponseWriter, r *http.Request, creds auth.Credentials, method auth.Method, topic string) (int, error) {
	var req produceRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProduceBody))
	if err := dec.Decode(&req); err != nil {
		writeProxyError(w, http.StatusBadRequest, "Invalid produce payload")
		return http.StatusBadRequest, fmt.Errorf("failed to decode produce payload: %w", err)
	}
	if len(req.Records) == 0 {
		writeProxyError(w, http.StatusBadRequest, "No records in produce payload")
		return http.StatusBadRequest, fmt.Errorf("empty records array")
	}

	// Decode records before touching the broker so a malformed payload
	// never costs a client construction.
	recs, index, err := buildRecords(topic, req.Records)
	if err != nil {
		writeProxyError(w, http.StatusBadRequest, err.Error())
		return http.StatusBadRequest, err
	}

	client, err := s.Cache.FetchOrInsert(creds, method)
	if err != nil {
		writeProxyError(w, http.StatusServiceUnavailable, "Broker client unavailable")
		return http.StatusServiceUnavailable, err
	}

	pctx, cancel := s.withTimeout(ctx)
	defer cancel()
	results := client.Produce(pctx, recs...)

	// Results complete in broker order; map them back to request order.
	offsets := make([]recordOffset, len(recs))
	for _, res := range results {
		i := index[res.Record]
		if res.Err != nil {
			offsets[i] = recordOffset{
				Partition: res.Record.Partition,
				Offset:    -1,
				ErrorCode: http.StatusBadGateway,
				Error:     res.Err.Error(),
			}
			continue
		}
		offsets[i] = recordOffset{
			Partition: res.Record.Partition,
			Offset:    res.Record.Offset,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(produceResponse{Offsets: offsets})
	return http.StatusOK, nil
}

// buildRecords translates the JSON record batch into broker records, with a
// request-order index for mapping results back. A record without a pinned
// partition (or pinned negative) carries partition -1, which the client's
// partitioner treats as unset.
func buildRecords(topic string, prs []produceRecord) ([]*kgo.Record, map[*kgo.Record]int, error) {
	recs := make([]*kgo.Record, len(prs))
	index := make(map[*kgo.Record]int, len(prs))
	for i, pr := range prs {
		value, err := base64.StdEncoding.DecodeString(pr.Value)
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: value is not valid base64", i)
		}
		var key []byte
		if pr.Key != "" {
			if key, err = base64.StdEncoding.DecodeString(pr.Key); err != nil {
				return nil, nil, fmt.Errorf("record %d: key is not valid base64", i)
			}
		}

		rec := &kgo.Record{Topic: topic, Key: key, Value: value, Partition: -1}
		if pr.Partition != nil && *pr.Partition >= 0 {
			rec.Partition = *pr.Partition
		}
		recs[i] = rec
		index[rec] = i
	}
	return recs, index, nil
}

// handleListTopics lists topic names visible to the caller's identity.
func (s *Server) handleListTopics(ctx context.Context, w http.ResponseWriter, creds auth.Credentials, method auth.Method) (int, error) {
	client, err := s.Cache.FetchOrInsert(creds, method)
	if err != nil {
		writeProxyError(w, http.StatusServiceUnavailable, "Broker client unavailable")
		return http.StatusServiceUnavailable, err
	}

	lctx, cancel := s.withTimeout(ctx)
	defer cancel()
	topics, err := client.ListTopics(lctx)
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, "Failed to list topics")
		return http.StatusBadGateway, err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(topicsResponse{Topics: topics})
	return http.StatusOK, nil
}

// withTimeout returns a context with the configured request timeout applied.
// If no timeout is configured, the original context is returned unchanged.
func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.RequestTimeout)
	}
	return ctx, func() {}
}
