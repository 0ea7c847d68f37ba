package registrar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds() Credentials {
	return Credentials{APIUser: "user", APIKey: "key", UserName: "user", ClientIP: "127.0.0.1"}
}

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "namecheap.domains.check", r.URL.Query().Get("Command"))
		assert.Equal(t, "abc.io,def.io", r.URL.Query().Get("DomainList"))
		assert.Equal(t, "key", r.URL.Query().Get("ApiKey"))
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<ApiResponse Status="OK" xmlns="http://api.namecheap.com/xml.response">
  <Errors/>
  <CommandResponse Type="namecheap.domains.check">
    <DomainCheckResult Domain="abc.io" Available="true" IsPremiumName="true"
      PremiumRegistrationPrice="649.00" IcannFee="0.18"/>
    <DomainCheckResult Domain="def.io" Available="false" IsPremiumName="false"
      PremiumRegistrationPrice="0"/>
  </CommandResponse>
</ApiResponse>`))
	}))
	defer srv.Close()

	c := NewClient(testCreds(), WithBaseURL(srv.URL))
	results, err := c.Check(context.Background(), []string{"abc.io", "def.io"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "abc.io", results[0].Domain)
	assert.True(t, results[0].Available)
	assert.True(t, results[0].IsPremium)
	require.NotNil(t, results[0].PremiumPrice)
	assert.Equal(t, 649.00, *results[0].PremiumPrice)
	require.NotNil(t, results[0].IcannFee)

	assert.False(t, results[1].Available)
	assert.False(t, results[1].IsPremium)
	assert.Nil(t, results[1].PremiumPrice)
}

func TestCheckEmptyInput(t *testing.T) {
	c := NewClient(testCreds())
	results, err := c.Check(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTLDPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "namecheap.users.getPricing", r.URL.Query().Get("Command"))
		assert.Equal(t, "io", r.URL.Query().Get("ProductName"))
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<ApiResponse Status="OK" xmlns="http://api.namecheap.com/xml.response">
  <CommandResponse Type="namecheap.users.getPricing">
    <UserGetPricingResult>
      <ProductType Name="domains">
        <ProductCategory Name="register">
          <Product Name="io">
            <Price Duration="1" DurationType="YEAR" Price="32.98" RegularPrice="39.98"/>
            <Price Duration="2" DurationType="YEAR" Price="72.96"/>
          </Product>
        </ProductCategory>
        <ProductCategory Name="renew">
          <Product Name="io">
            <Price Duration="1" DurationType="YEAR" Price="45.98"/>
          </Product>
        </ProductCategory>
      </ProductType>
    </UserGetPricingResult>
  </CommandResponse>
</ApiResponse>`))
	}))
	defer srv.Close()

	c := NewClient(testCreds(), WithBaseURL(srv.URL))
	price, err := c.TLDPrice(context.Background(), "io")
	require.NoError(t, err)
	assert.Equal(t, 32.98, price)
}

func TestTLDPriceMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<ApiResponse Status="OK"><CommandResponse/></ApiResponse>`))
	}))
	defer srv.Close()

	c := NewClient(testCreds(), WithBaseURL(srv.URL))
	_, err := c.TLDPrice(context.Background(), "zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no registration price`)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<ApiResponse Status="ERROR">
  <Errors>
    <Error Number="1011102">API Key is invalid or API access has not been enabled</Error>
  </Errors>
</ApiResponse>`))
	}))
	defer srv.Close()

	c := NewClient(testCreds(), WithBaseURL(srv.URL))
	_, err := c.Check(context.Background(), []string{"abc.io"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "1011102", apiErr.Number)
	assert.Contains(t, apiErr.Message, "API Key is invalid")
}

func TestHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testCreds(), WithBaseURL(srv.URL))
	_, err := c.Check(context.Background(), []string{"abc.io"})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestNonUTF8Charset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0" encoding="iso-8859-1"?>
<ApiResponse Status="OK">
  <CommandResponse>
    <DomainCheckResult Domain="abc.io" Available="true" IsPremiumName="false"/>
  </CommandResponse>
</ApiResponse>`))
	}))
	defer srv.Close()

	c := NewClient(testCreds(), WithBaseURL(srv.URL))
	results, err := c.Check(context.Background(), []string{"abc.io"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Available)
}
