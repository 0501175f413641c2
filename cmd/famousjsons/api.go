package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/famousjsons/chain"
	"github.com/hazyhaar/famousjsons/gallery"
	"github.com/hazyhaar/famousjsons/mosaic"
	"github.com/hazyhaar/famousjsons/projectstate"
	"github.com/hazyhaar/famousjsons/shield"
	"github.com/hazyhaar/famousjsons/svgpath"
	"github.com/hazyhaar/famousjsons/typeface"
)

// stateSource is the part of *projectstate.Updater the API serves.
type stateSource interface {
	Current(ctx context.Context) (*projectstate.State, error)
	Refresh(ctx context.Context) (*projectstate.State, error)
}

// minter is the part of *chain.Contract the mint endpoints need.
type minter interface {
	Address() common.Address
	MintCalldata(to common.Address, tokenID *big.Int) ([]byte, error)
	WaitReceipt(ctx context.Context, txHash common.Hash, opts chain.PollOptions) (*types.Receipt, error)
}

type api struct {
	cfg     *appConfig
	state   stateSource
	mint    minter
	gallery *gallery.Gallery // nil when no collection is configured
	face    *typeface.Face
	mcp     *mcp.Server // nil disables /mcp
	limiter *shield.RateLimiter
	logger  *slog.Logger
}

func newAPI(cfg *appConfig, state stateSource, mint minter, g *gallery.Gallery, face *typeface.Face, logger *slog.Logger) *api {
	if logger == nil {
		logger = slog.Default()
	}
	return &api{
		cfg:     cfg,
		state:   state,
		mint:    mint,
		gallery: g,
		face:    face,
		limiter: shield.NewRateLimiter(cfg.RateLimits, cfg.TrustProxy),
		logger:  logger,
	}
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.Stack(a.cfg.CORS) {
		r.Use(mw)
	}
	r.Use(a.limiter.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok", "font": a.face.Name()})
	})

	r.Get("/getState", a.handleGetState)
	r.Post("/updateState", a.handleUpdateState)

	r.With(shield.MaxBody(a.cfg.MaxUpload)).Post("/mosaic", a.handleMosaic)

	r.Get("/gallery", a.handleGallery)
	r.Get("/art/{name}", a.handleArt)
	r.Get("/metadata/{tokenID}", a.handleMetadata)

	r.Get("/mint/{tokenID}/calldata", a.handleCalldata)
	r.With(shield.MaxBody(4<<10)).Post("/confirmMint", a.handleConfirmMint)

	if a.mcp != nil {
		srv := a.mcp
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	return r
}

// GET /getState[?format=summary]
func (a *api) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := a.state.Current(r.Context())
	if err != nil {
		shield.GetLogger(r.Context()).Error("getState failed", "error", err)
		writeError(w, 500, err)
		return
	}
	if r.URL.Query().Get("format") == "summary" {
		writeJSON(w, 200, st.Summarize())
		return
	}
	writeJSON(w, 200, st)
}

// POST /updateState
func (a *api) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	st, err := a.state.Refresh(r.Context())
	if err != nil {
		shield.GetLogger(r.Context()).Error("updateState failed", "error", err)
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, st)
}

// POST /mosaic, multipart: image (file), text or name, background, paths.
func (a *api) handleMosaic(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeError(w, 400, err)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, 400, map[string]string{"error": "image file is required"})
		return
	}
	defer file.Close()

	img, err := mosaic.LoadImage(file)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	bg, err := mosaic.ParseBackground(r.FormValue("background"))
	if err != nil {
		writeError(w, 400, err)
		return
	}

	text := r.FormValue("text")
	if text == "" && r.FormValue("name") != "" && a.gallery != nil {
		item, err := a.gallery.Lookup(r.FormValue("name"))
		if err != nil {
			writeError(w, 404, err)
			return
		}
		text = item.JSON
	}

	doc, err := mosaic.Encode(img, text, bg, a.face)
	if err != nil {
		status := 500
		if errors.Is(err, mosaic.ErrEmptyText) {
			status = 400
		}
		writeError(w, status, err)
		return
	}

	out := doc.SVG()
	if paths, _ := strconv.ParseBool(r.FormValue("paths")); paths {
		out, err = svgpath.Convert(doc.Markup(), svgpath.Dimensions{Width: doc.Width, Height: doc.Height}, a.face)
		if err != nil {
			writeError(w, 500, err)
			return
		}
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	io.WriteString(w, out)
}

// GET /gallery?q=
func (a *api) handleGallery(w http.ResponseWriter, r *http.Request) {
	if a.gallery == nil {
		writeJSON(w, 404, map[string]string{"error": "no collection loaded"})
		return
	}
	items := a.gallery.Search(r.URL.Query().Get("q"))
	st, err := a.state.Current(r.Context())
	if err != nil {
		// The listing is still useful without minted flags.
		shield.GetLogger(r.Context()).Warn("gallery: state unavailable", "error", err)
		writeJSON(w, 200, items)
		return
	}
	writeJSON(w, 200, gallery.MarkMinted(items, st.TokenIDsMinted))
}

// GET /art/{name}
//
// Artwork is re-rooted on its viewBox alone so it scales to the page.
func (a *api) handleArt(w http.ResponseWriter, r *http.Request) {
	if a.gallery == nil {
		writeJSON(w, 404, map[string]string{"error": "no collection loaded"})
		return
	}
	data, err := a.gallery.Artwork(chi.URLParam(r, "name"))
	if err != nil {
		status := 500
		if errors.Is(err, gallery.ErrUnknownArtifact) {
			status = 404
		}
		writeError(w, status, err)
		return
	}
	inner, dims, err := svgpath.Unwrap(string(data))
	if err != nil {
		shield.GetLogger(r.Context()).Error("art: bad artwork", "name", chi.URLParam(r, "name"), "error", err)
		writeError(w, 500, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	io.WriteString(w, svgpath.Wrap(inner, dims))
}

// GET /metadata/{tokenID}
func (a *api) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if a.gallery == nil {
		writeJSON(w, 404, map[string]string{"error": "no collection loaded"})
		return
	}
	names := a.gallery.Names()
	id, err := strconv.Atoi(chi.URLParam(r, "tokenID"))
	if err != nil || id < 0 || id >= len(names) {
		writeJSON(w, 404, map[string]string{"error": "unknown token"})
		return
	}
	body, err := gallery.BuildMetadata(names, a.cfg.SiteURL)[id].Encode()
	if err != nil {
		writeError(w, 500, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

type calldataResponse struct {
	TokenID string `json:"token_id"`
	To      string `json:"to"`
	Value   string `json:"value"`
	Data    string `json:"data"`
}

// GET /mint/{tokenID}/calldata?to=0x...
//
// Returns the transaction a wallet sends to mint tokenID to the given
// address, priced from the cached state.
func (a *api) handleCalldata(w http.ResponseWriter, r *http.Request) {
	if a.mint == nil {
		writeJSON(w, 503, map[string]string{"error": "no chain connection"})
		return
	}
	raw := chi.URLParam(r, "tokenID")
	tokenID, ok := new(big.Int).SetString(raw, 10)
	if !ok || tokenID.Sign() < 0 {
		writeJSON(w, 400, map[string]string{"error": "token id must be a decimal integer"})
		return
	}
	if a.gallery != nil && (!tokenID.IsInt64() || tokenID.Int64() >= int64(a.gallery.Len())) {
		writeJSON(w, 404, map[string]string{"error": "unknown token"})
		return
	}
	to := r.URL.Query().Get("to")
	if !common.IsHexAddress(to) {
		writeJSON(w, 400, map[string]string{"error": "to must be a 0x address"})
		return
	}

	st, err := a.state.Current(r.Context())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	id := tokenID.String()
	if st.IsMinted(id) {
		writeJSON(w, 409, map[string]string{"error": "token " + id + " already minted"})
		return
	}

	data, err := a.mint.MintCalldata(common.HexToAddress(to), tokenID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, calldataResponse{
		TokenID: id,
		To:      a.mint.Address().Hex(),
		Value:   hexutil.EncodeBig(st.Price()),
		Data:    hexutil.Encode(data),
	})
}

// POST /confirmMint {"tx_hash": "0x..."}
//
// Waits for the mint transaction to be mined, then refreshes the state so
// the new token shows up without waiting for the scheduler.
func (a *api) handleConfirmMint(w http.ResponseWriter, r *http.Request) {
	if a.mint == nil {
		writeJSON(w, 503, map[string]string{"error": "no chain connection"})
		return
	}
	var req struct {
		TxHash string `json:"tx_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	b, err := hexutil.Decode(req.TxHash)
	if err != nil || len(b) != common.HashLength {
		writeJSON(w, 400, map[string]string{"error": "tx_hash must be a 32-byte 0x hex string"})
		return
	}

	logger := shield.GetLogger(r.Context())
	hash := common.BytesToHash(b)
	if _, err := a.mint.WaitReceipt(r.Context(), hash, chain.PollOptions{
		Attempts: a.cfg.ReceiptAttempts,
		Interval: a.cfg.ReceiptInterval,
	}); err != nil {
		logger.Warn("confirmMint: receipt", "tx", hash.Hex(), "error", err)
		switch {
		case errors.Is(err, chain.ErrTxFailed):
			writeError(w, 422, err)
		case errors.Is(err, chain.ErrReceiptTimeout):
			writeError(w, 504, err)
		default:
			writeError(w, 500, err)
		}
		return
	}

	st, err := a.state.Refresh(r.Context())
	if err != nil {
		logger.Error("confirmMint: refresh", "tx", hash.Hex(), "error", err)
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
