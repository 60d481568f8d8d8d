// ABOUTME: Handlers for the client object API
// ABOUTME: Binds each request to the caller's store and delegates to the vss service

package gateway

import (
	"errors"
	"net/http"

	"github.com/2389/vss-gateway/internal/auth"
	"github.com/2389/vss-gateway/internal/store"
	"github.com/2389/vss-gateway/internal/vss"
)

// resolveStoreID applies the token's store binding to the id in a request body
func resolveStoreID(r *http.Request, requested string) (string, error) {
	return auth.MustFromContext(r.Context()).ResolveStoreID(requested)
}

// getObject loads the object named by the request, or nil when it does not exist.
func (g *Gateway) getObject(w http.ResponseWriter, r *http.Request) (*vss.KeyValue, bool) {
	var req GetObjectRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeServiceError(w, r, err)
		return nil, false
	}
	storeID, err := resolveStoreID(r, req.StoreID)
	if err != nil {
		g.writeServiceError(w, r, err)
		return nil, false
	}

	kv, err := g.service.GetObject(r.Context(), storeID, req.Key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, true
	}
	if err != nil {
		g.writeServiceError(w, r, err)
		return nil, false
	}
	return kv, true
}

func (g *Gateway) handleGetObject(w http.ResponseWriter, r *http.Request) {
	kv, ok := g.getObject(w, r)
	if !ok {
		return
	}
	if kv == nil {
		g.writeJSON(w, http.StatusOK, nil)
		return
	}
	g.writeJSON(w, http.StatusOK, keyValueV1(kv))
}

func (g *Gateway) handleGetObjectV2(w http.ResponseWriter, r *http.Request) {
	kv, ok := g.getObject(w, r)
	if !ok {
		return
	}
	if kv == nil {
		g.writeJSON(w, http.StatusOK, nil)
		return
	}
	g.writeJSON(w, http.StatusOK, keyValueV2(kv))
}

func (g *Gateway) handlePutObjects(w http.ResponseWriter, r *http.Request) {
	var req PutObjectsRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	storeID, err := resolveStoreID(r, req.StoreID)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	items := make([]vss.KeyValue, len(req.TransactionItems))
	for i, kv := range req.TransactionItems {
		items[i] = vss.KeyValue{Key: kv.Key, Value: kv.Value, Version: kv.Version}
	}
	if err := g.service.PutObjects(r.Context(), storeID, items); err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, nil)
}

func (g *Gateway) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	var req DeleteObjectRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	storeID, err := resolveStoreID(r, req.StoreID)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	if err := g.service.DeleteObject(r.Context(), storeID, req.KeyValue.Key, req.KeyValue.Version); err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, nil)
}

func toKeyVersions(kvs []store.KeyVersion) []KeyVersion {
	out := make([]KeyVersion, len(kvs))
	for i, kv := range kvs {
		out[i] = KeyVersion{Key: kv.Key, Version: kv.Version}
	}
	return out
}

// handleListKeyVersions returns every live key in one unpaginated array.
func (g *Gateway) handleListKeyVersions(w http.ResponseWriter, r *http.Request) {
	var req ListKeyVersionsRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	storeID, err := resolveStoreID(r, req.StoreID)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	all, err := g.service.ListAllKeyVersions(r.Context(), storeID, req.KeyPrefix)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, toKeyVersions(all))
}

func (g *Gateway) handleListKeyVersionsV2(w http.ResponseWriter, r *http.Request) {
	var req ListKeyVersionsRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	storeID, err := resolveStoreID(r, req.StoreID)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	page, err := g.service.ListKeyVersions(r.Context(), vss.ListRequest{
		StoreID:   storeID,
		Prefix:    req.KeyPrefix,
		PageSize:  req.PageSize,
		PageToken: req.PageToken,
	})
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, ListKeyVersionsResponse{
		KeyVersions:   toKeyVersions(page.KeyVersions),
		NextPageToken: page.NextPageToken,
	})
}
