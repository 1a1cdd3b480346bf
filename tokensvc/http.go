package tokensvc

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	headerSignature = "X-Signature"
	maxBodyBytes    = 1 << 20
)

// HTTPClient calls a token service over JSON/HTTP. Each call is a POST to
// <endpoint>/<method>; when a secret is configured the body is signed with
// HMAC-SHA256 in the X-Signature header.
type HTTPClient struct {
	endpoint string
	contract string
	secret   string
	http     *http.Client
}

// NewHTTPClient returns a client for the token contract served at endpoint.
func NewHTTPClient(endpoint, contract, secret string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		contract: contract,
		secret:   secret,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	resp, err := c.call(ctx, methodBalanceOf, balanceRequest{AccountID: account})
	if err != nil {
		return nil, err
	}
	bal, ok := new(big.Int).SetString(resp.Balance, 10)
	if !ok || bal.Sign() < 0 {
		return nil, fmt.Errorf("%s: malformed balance %q", methodBalanceOf, resp.Balance)
	}
	return bal, nil
}

func (c *HTTPClient) Transfer(ctx context.Context, id, recipient string, amount *big.Int) error {
	_, err := c.call(ctx, methodTransfer, transferRequest{
		TransferID: id,
		ReceiverID: recipient,
		Amount:     amount.String(),
	})
	return err
}

func (c *HTTPClient) call(ctx context.Context, method string, body any) (*response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+method, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Token-Contract", c.contract)
	req.Header.Set(headerRequestID, uuid.NewString())
	if c.secret != "" {
		req.Header.Set(headerSignature, sign(c.secret, data))
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer httpResp.Body.Close()

	var resp response
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxBodyBytes)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%s: decode response (status %d): %w", method, httpResp.StatusCode, err)
	}
	if !resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = httpResp.Status
		}
		if msg == ErrInsufficientBalance.Error() {
			return nil, fmt.Errorf("%s: %w", method, ErrInsufficientBalance)
		}
		return nil, fmt.Errorf("%s: %s", method, msg)
	}
	return &resp, nil
}

func sign(secret string, body []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// NewHTTPHandler serves svc over the same wire protocol HTTPClient speaks.
// Requests without a valid signature are rejected when secret is set.
func NewHTTPHandler(svc Service, secret string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /"+methodBalanceOf, func(w http.ResponseWriter, r *http.Request) {
		var req balanceRequest
		if !readSigned(w, r, secret, &req) {
			return
		}
		bal, err := svc.BalanceOf(r.Context(), req.AccountID)
		if err != nil {
			writeResponse(w, http.StatusOK, response{Error: err.Error()})
			return
		}
		writeResponse(w, http.StatusOK, response{OK: true, Balance: bal.String()})
	})
	mux.HandleFunc("POST /"+methodTransfer, func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if !readSigned(w, r, secret, &req) {
			return
		}
		amount, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			writeResponse(w, http.StatusBadRequest, response{Error: "amount must be a positive integer"})
			return
		}
		if err := svc.Transfer(r.Context(), req.TransferID, req.ReceiverID, amount); err != nil {
			msg := err.Error()
			if errors.Is(err, ErrInsufficientBalance) {
				msg = ErrInsufficientBalance.Error()
			}
			writeResponse(w, http.StatusOK, response{Error: msg})
			return
		}
		writeResponse(w, http.StatusOK, response{OK: true})
	})
	return mux
}

func readSigned(w http.ResponseWriter, r *http.Request, secret string, v any) bool {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, response{Error: err.Error()})
		return false
	}
	if secret != "" && !hmac.Equal([]byte(r.Header.Get(headerSignature)), []byte(sign(secret, data))) {
		writeResponse(w, http.StatusUnauthorized, response{Error: "bad signature"})
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		writeResponse(w, http.StatusBadRequest, response{Error: err.Error()})
		return false
	}
	return true
}

func writeResponse(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
