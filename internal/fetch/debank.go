package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultDeBankURL is the DeBank Pro OpenAPI
const DefaultDeBankURL = "https://pro-openapi.debank.com"

// DeBankClient reads wallet balances across chains
type DeBankClient struct {
	baseURL    string
	httpClient *http.Client
	accessKey  string
}

// NewDeBankClient creates a new DeBank API client
func NewDeBankClient(baseURL, accessKey string, httpClient *http.Client) *DeBankClient {
	if baseURL == "" {
		baseURL = DefaultDeBankURL
	}
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &DeBankClient{baseURL: baseURL, accessKey: accessKey, httpClient: httpClient}
}

// TotalBalance returns the USD value of everything address holds
func (c *DeBankClient) TotalBalance(ctx context.Context, address common.Address) (float64, error) {
	var resp struct {
		TotalUSDValue float64 `json:"total_usd_value"`
	}
	endpoint := fmt.Sprintf("%s/v1/user/total_balance?id=%s", c.baseURL, strings.ToLower(address.Hex()))
	headers := map[string]string{}
	if c.accessKey != "" {
		headers["AccessKey"] = c.accessKey
	}
	if err := GetJSON(ctx, c.httpClient, endpoint, headers, &resp); err != nil {
		return 0, fmt.Errorf("debank total balance: %w", err)
	}
	return resp.TotalUSDValue, nil
}
