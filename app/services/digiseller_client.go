package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/esim-fulfillment/utils"
)

// StorefrontClient is the set of storefront calls the pipeline makes
type StorefrontClient interface {
	FetchPurchaseInfo(ctx context.Context, orderID string) (*PurchaseInfo, error)
	ConfirmDelivery(ctx context.Context, transactionCode string) (*ConfirmationResult, error)
}

// VariantCandidate is one line-item option of a purchase
type VariantCandidate struct {
	OptionID   int64  `json:"option_id"`
	Name       string `json:"name"`
	Value      string `json:"value"`
	Identifier int64  `json:"identifier"`
}

// PurchaseInfo is the authoritative purchase record returned by the storefront
type PurchaseInfo struct {
	ProductID    int64              `json:"product_id"`
	ProductName  string             `json:"product_name"`
	Quantity     int                `json:"quantity"`
	Amount       string             `json:"amount"`
	Currency     string             `json:"currency"`
	InvoiceState int                `json:"invoice_state"`
	PurchaseDate string             `json:"purchase_date"`
	UniqueCode   string             `json:"unique_code"`
	BuyerEmail   string             `json:"buyer_email"`
	Options      []VariantCandidate `json:"options"`
	Raw          json.RawMessage    `json:"-"`
}

// ConfirmationResult is the storefront answer to a delivery confirmation
type ConfirmationResult struct {
	TransactionCode string    `json:"transaction_code"`
	Retval          int       `json:"retval"`
	Description     string    `json:"description,omitempty"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// DigisellerClient talks to the Digiseller seller API
type DigisellerClient struct {
	BaseURL    string
	SellerID   int64
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Tokens     TokenCache

	now func() time.Time
}

func NewDigisellerClient(baseURL string, sellerID int64, apiKey string, timeout time.Duration, tokens TokenCache) *DigisellerClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DigisellerClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		SellerID:   sellerID,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
		Tokens:     tokens,
		now:        utils.UTCNow,
	}
}

func (c *DigisellerClient) Name() string { return string(ProviderStorefront) }

type digisellerLoginReq struct {
	SellerID  int64  `json:"seller_id"`
	Timestamp int64  `json:"timestamp"`
	Sign      string `json:"sign"`
}

type digisellerLoginResp struct {
	Retval    int    `json:"retval"`
	Desc      string `json:"desc"`
	Token     string `json:"token"`
	ValidThru string `json:"valid_thru"`
}

// ExchangeToken signs sha256(api_key + timestamp) and trades it for a token valid until valid_thru
func (c *DigisellerClient) ExchangeToken(ctx context.Context) (*BearerToken, error) {
	now := c.now()
	ts := now.Unix()
	sum := sha256.Sum256([]byte(c.APIKey + strconv.FormatInt(ts, 10)))

	b, _ := json.Marshal(digisellerLoginReq{SellerID: c.SellerID, Timestamp: ts, Sign: hex.EncodeToString(sum[:])})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/apilogin", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := do(c.HTTPClient, ProviderStorefront, "token exchange", req)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusUnprocessableEntity {
		return nil, &AuthError{Provider: ProviderStorefront, Status: resp.Status, Reason: truncate(string(resp.Body), maxErrorBody)}
	}
	if !resp.ok() {
		return nil, remoteError(ProviderStorefront, resp)
	}

	var out digisellerLoginResp
	if err := decodeJSON(ProviderStorefront, resp.Body, &out); err != nil {
		return nil, err
	}
	if out.Retval != 0 {
		return nil, &AuthError{Provider: ProviderStorefront, Status: resp.Status, Reason: fmt.Sprintf("retval %d: %s", out.Retval, out.Desc)}
	}
	if out.Token == "" || out.ValidThru == "" {
		return nil, &AuthError{Provider: ProviderStorefront, Status: resp.Status, Reason: "token or valid_thru missing from response"}
	}
	validThru, err := utils.ParseProviderTime(out.ValidThru)
	if err != nil {
		return nil, &MalformedResponseError{Provider: ProviderStorefront, RawBody: resp.Body, Err: err}
	}
	if !validThru.After(now) {
		return nil, &AuthError{Provider: ProviderStorefront, Status: resp.Status, Reason: "received expired token"}
	}

	return &BearerToken{Value: out.Token, ExpiresAt: validThru}, nil
}

type digisellerPurchaseOption struct {
	ID        FlexString `json:"id"`
	Name      string     `json:"name"`
	Value     FlexString `json:"value"`
	VariantID FlexString `json:"variant_id"`
}

type digisellerPurchaseContent struct {
	ItemID       FlexString `json:"item_id"`
	Name         string     `json:"name"`
	CntGoods     FlexString `json:"cnt_goods"`
	Amount       FlexString `json:"amount"`
	CurrencyType string     `json:"currency_type"`
	InvoiceState FlexString `json:"invoice_state"`
	PurchaseDate string     `json:"purchase_date"`
	UniqueCode   string     `json:"unique_code"`
	BuyerInfo    struct {
		Email string `json:"email"`
	} `json:"buyer_info"`
	Options []digisellerPurchaseOption `json:"options"`
}

type digisellerPurchaseResp struct {
	Retval  int                        `json:"retval"`
	Retdesc string                     `json:"retdesc"`
	Content *digisellerPurchaseContent `json:"content"`
}

// FetchPurchaseInfo loads the purchase behind a storefront order id
func (c *DigisellerClient) FetchPurchaseInfo(ctx context.Context, orderID string) (*PurchaseInfo, error) {
	var info *PurchaseInfo
	err := withAuthRetry(ctx, c.Tokens, ProviderStorefront, func(token string) error {
		var callErr error
		info, callErr = c.fetchPurchaseInfo(ctx, orderID, token)
		return callErr
	})
	return info, err
}

func (c *DigisellerClient) fetchPurchaseInfo(ctx context.Context, orderID, token string) (*PurchaseInfo, error) {
	endpoint := fmt.Sprintf("%s/api/purchase/info/%s?token=%s", c.BaseURL, url.PathEscape(orderID), url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := do(c.HTTPClient, ProviderStorefront, "purchase info", req)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, remoteError(ProviderStorefront, resp)
	}

	var out digisellerPurchaseResp
	if err := decodeJSON(ProviderStorefront, resp.Body, &out); err != nil {
		return nil, err
	}
	if out.Retval != 0 {
		return nil, &RemoteError{Provider: ProviderStorefront, Status: resp.Status, Body: fmt.Sprintf("retval %d: %s", out.Retval, out.Retdesc)}
	}
	if out.Content == nil {
		return nil, &MalformedResponseError{Provider: ProviderStorefront, RawBody: resp.Body, Err: errors.New("content missing")}
	}

	content := out.Content
	productID, err := content.ItemID.Int64()
	if err != nil {
		return nil, &MalformedResponseError{Provider: ProviderStorefront, RawBody: resp.Body, Err: fmt.Errorf("item_id: %w", err)}
	}

	info := &PurchaseInfo{
		ProductID:    productID,
		ProductName:  content.Name,
		Quantity:     utils.DefaultQuantity,
		Amount:       content.Amount.String(),
		Currency:     content.CurrencyType,
		PurchaseDate: content.PurchaseDate,
		UniqueCode:   content.UniqueCode,
		BuyerEmail:   strings.TrimSpace(content.BuyerInfo.Email),
		Raw:          json.RawMessage(resp.Body),
	}
	if qty, err := content.CntGoods.Int64(); err == nil && qty > 0 {
		info.Quantity = int(qty)
	}
	if state, err := content.InvoiceState.Int64(); err == nil {
		info.InvoiceState = int(state)
	}

	for _, opt := range content.Options {
		candidate := VariantCandidate{Name: opt.Name, Value: opt.Value.String()}
		candidate.OptionID, _ = opt.ID.Int64()
		// variant_id identifies the chosen variant; older payloads only carry it in value
		if id, err := opt.VariantID.Int64(); err == nil {
			candidate.Identifier = id
		} else if id, err := opt.Value.Int64(); err == nil {
			candidate.Identifier = id
		} else {
			continue
		}
		info.Options = append(info.Options, candidate)
	}

	return info, nil
}

type digisellerDeliverResp struct {
	Retval  int    `json:"retval"`
	Retdesc string `json:"retdesc"`
}

// ConfirmDelivery marks the goods of a transaction code as delivered
func (c *DigisellerClient) ConfirmDelivery(ctx context.Context, transactionCode string) (*ConfirmationResult, error) {
	var result *ConfirmationResult
	err := withAuthRetry(ctx, c.Tokens, ProviderStorefront, func(token string) error {
		var callErr error
		result, callErr = c.confirmDelivery(ctx, transactionCode, token)
		return callErr
	})
	return result, err
}

func (c *DigisellerClient) confirmDelivery(ctx context.Context, transactionCode, token string) (*ConfirmationResult, error) {
	endpoint := fmt.Sprintf("%s/api/purchases/unique-code/%s/deliver?token=%s", c.BaseURL, url.PathEscape(transactionCode), url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := do(c.HTTPClient, ProviderStorefront, "confirm delivery", req)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, remoteError(ProviderStorefront, resp)
	}

	result := &ConfirmationResult{TransactionCode: transactionCode, ConfirmedAt: c.now()}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return result, nil
	}
	var out digisellerDeliverResp
	if err := decodeJSON(ProviderStorefront, resp.Body, &out); err != nil {
		return nil, err
	}
	if out.Retval != 0 {
		return nil, &RemoteError{Provider: ProviderStorefront, Status: resp.Status, Body: fmt.Sprintf("retval %d: %s", out.Retval, out.Retdesc)}
	}
	result.Retval = out.Retval
	result.Description = out.Retdesc
	return result, nil
}
