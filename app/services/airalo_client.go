package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/esim-fulfillment/utils"
)

// ProvisionerClient is the set of provisioner calls the pipeline makes
type ProvisionerClient interface {
	CreateProvisioningOrder(ctx context.Context, in ProvisioningRequest) (*ProviderOrderPayload, error)
}

// ProvisioningRequest describes the SIMs to order for one local order
type ProvisioningRequest struct {
	PackageRef   string
	Quantity     int
	BuyerContact string
}

// ProviderSim is one SIM of a provisioner order
type ProviderSim struct {
	ID                         FlexString      `json:"id"`
	ICCID                      string          `json:"iccid"`
	LPA                        string          `json:"lpa"`
	QRCode                     string          `json:"qrcode"`
	QRCodeURL                  string          `json:"qrcode_url"`
	DirectAppleInstallationURL string          `json:"direct_apple_installation_url"`
	APNType                    string          `json:"apn_type"`
	APNValue                   string          `json:"apn_value"`
	IsRoaming                  bool            `json:"is_roaming"`
	Raw                        json.RawMessage `json:"-"`
}

// ProviderOrderPayload is the data block of a successful order creation
type ProviderOrderPayload struct {
	ID                 FlexString      `json:"id"`
	Code               string          `json:"code"`
	Currency           string          `json:"currency"`
	PackageID          string          `json:"package_id"`
	Quantity           FlexString      `json:"quantity"`
	Type               string          `json:"type"`
	Description        string          `json:"description"`
	EsimType           string          `json:"esim_type"`
	Validity           FlexString      `json:"validity"`
	Package            string          `json:"package"`
	Data               string          `json:"data"`
	Price              FlexString      `json:"price"`
	NetPrice           FlexString      `json:"net_price"`
	CreatedAt          string          `json:"created_at"`
	ManualInstallation string          `json:"manual_installation"`
	QRCodeInstallation string          `json:"qrcode_installation"`
	InstallationGuides json.RawMessage `json:"installation_guides"`
	Sims               []ProviderSim   `json:"sims"`

	// Raw is the full data block as received
	Raw json.RawMessage `json:"-"`
}

// CreatedAtTime parses created_at, nil when absent or unparsable
func (p *ProviderOrderPayload) CreatedAtTime() *time.Time {
	return utils.ParseProviderTimePtr(p.CreatedAt)
}

// AiraloClient talks to the Airalo partner API
type AiraloClient struct {
	BaseURL           string
	ClientID          string
	ClientSecret      string
	BrandSettingsName string
	SharingOptions    []string
	CopyAddresses     []string
	HTTPClient        *http.Client
	Timeout           time.Duration
	Tokens            TokenCache

	now func() time.Time
}

func NewAiraloClient(baseURL, clientID, clientSecret string, timeout time.Duration, tokens TokenCache) *AiraloClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AiraloClient{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		SharingOptions: []string{"pdf"},
		HTTPClient:     &http.Client{Timeout: timeout},
		Timeout:        timeout,
		Tokens:         tokens,
		now:            utils.UTCNow,
	}
}

func (c *AiraloClient) Name() string { return string(ProviderProvisioner) }

type airaloTokenResp struct {
	Data struct {
		AccessToken string     `json:"access_token"`
		ExpiresIn   FlexString `json:"expires_in"`
	} `json:"data"`
}

// ExchangeToken trades client credentials for a token valid for expires_in seconds
func (c *AiraloClient) ExchangeToken(ctx context.Context) (*BearerToken, error) {
	body, contentType, err := multipartBody([]formField{
		{Name: "client_id", Value: c.ClientID},
		{Name: "client_secret", Value: c.ClientSecret},
		{Name: "grant_type", Value: "client_credentials"},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/token", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := do(c.HTTPClient, ProviderProvisioner, "token exchange", req)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusUnprocessableEntity {
		return nil, &AuthError{Provider: ProviderProvisioner, Status: resp.Status, Reason: truncate(string(resp.Body), maxErrorBody)}
	}
	if !resp.ok() {
		return nil, remoteError(ProviderProvisioner, resp)
	}

	var out airaloTokenResp
	if err := decodeJSON(ProviderProvisioner, resp.Body, &out); err != nil {
		return nil, err
	}
	if out.Data.AccessToken == "" {
		return nil, &AuthError{Provider: ProviderProvisioner, Status: resp.Status, Reason: "access_token missing from response"}
	}
	expiresIn, err := out.Data.ExpiresIn.Int64()
	if err != nil || expiresIn <= 0 {
		return nil, &AuthError{Provider: ProviderProvisioner, Status: resp.Status, Reason: "expires_in missing from response"}
	}

	return &BearerToken{
		Value:     out.Data.AccessToken,
		ExpiresAt: c.now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

type airaloOrderEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// CreateProvisioningOrder orders SIMs for a package. The call is not idempotent on the provider side.
func (c *AiraloClient) CreateProvisioningOrder(ctx context.Context, in ProvisioningRequest) (*ProviderOrderPayload, error) {
	var payload *ProviderOrderPayload
	err := withAuthRetry(ctx, c.Tokens, ProviderProvisioner, func(token string) error {
		var callErr error
		payload, callErr = c.createOrder(ctx, in, token)
		return callErr
	})
	return payload, err
}

func (c *AiraloClient) orderFields(in ProvisioningRequest) []formField {
	qty := strconv.Itoa(in.Quantity)
	fields := []formField{
		{Name: "quantity", Value: qty},
		{Name: "package_id", Value: in.PackageRef},
		{Name: "type", Value: utils.ProvisioningOrderType},
		{Name: "description", Value: qty + " " + in.PackageRef},
		{Name: "brand_settings_name", Value: c.BrandSettingsName},
	}
	if in.BuyerContact != "" {
		fields = append(fields, formField{Name: "to_email", Value: in.BuyerContact})
		for _, opt := range c.SharingOptions {
			fields = append(fields, formField{Name: "sharing_option[]", Value: opt})
		}
		for _, addr := range c.CopyAddresses {
			fields = append(fields, formField{Name: "copy_address[]", Value: addr})
		}
	}
	return fields
}

func (c *AiraloClient) createOrder(ctx context.Context, in ProvisioningRequest, token string) (*ProviderOrderPayload, error) {
	body, contentType, err := multipartBody(c.orderFields(in))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/orders", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := do(c.HTTPClient, ProviderProvisioner, "create order", req)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, remoteError(ProviderProvisioner, resp)
	}

	var env airaloOrderEnvelope
	if err := decodeJSON(ProviderProvisioner, resp.Body, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &MalformedResponseError{Provider: ProviderProvisioner, RawBody: resp.Body, Err: errors.New("data missing")}
	}

	var payload ProviderOrderPayload
	if err := decodeJSON(ProviderProvisioner, env.Data, &payload); err != nil {
		return nil, err
	}
	if payload.ID == "" || payload.Code == "" {
		return nil, &MalformedResponseError{Provider: ProviderProvisioner, RawBody: resp.Body, Err: errors.New("data.id or data.code missing")}
	}
	payload.Raw = env.Data

	// keep each SIM's own JSON for audit
	var rawSims struct {
		Sims []json.RawMessage `json:"sims"`
	}
	if err := json.Unmarshal(env.Data, &rawSims); err == nil && len(rawSims.Sims) == len(payload.Sims) {
		for i := range payload.Sims {
			payload.Sims[i].Raw = rawSims.Sims[i]
		}
	}

	return &payload, nil
}
