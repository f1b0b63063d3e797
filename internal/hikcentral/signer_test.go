package hikcentral

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigner = Signer{AppKey: "22452825", AppSecret: "Q9bWogAziordVdIngfoa"}

const (
	testNonce     = "0049395a-85a5-4991-8240-148dcf3e3612"
	testTimestamp = "1592894521052"
)

func TestStringToSign_NoBody(t *testing.T) {
	got := testSigner.StringToSign("post", acceptJSON, "", contentTypeJSON, testNonce, testTimestamp, "/artemis/api/common/v1/version")
	want := "POST\n" +
		"application/json\n" +
		"application/json;charset=UTF-8\n" +
		"x-ca-key:22452825\n" +
		"x-ca-nonce:0049395a-85a5-4991-8240-148dcf3e3612\n" +
		"x-ca-timestamp:1592894521052\n" +
		"/artemis/api/common/v1/version"
	assert.Equal(t, want, got)
}

func TestSignature_KnownVector(t *testing.T) {
	sts := testSigner.StringToSign("POST", acceptJSON, "", contentTypeJSON, testNonce, testTimestamp, "/artemis/api/common/v1/version")
	assert.Equal(t, "zJ7mcv6d2aUfmWTzo4AlAWyyXMWSCS59xnFzb13NY3M=", testSigner.Signature(sts))
}

func TestSign_WithBody(t *testing.T) {
	body := []byte(`{"pageNo":1}`)
	req, err := http.NewRequest(http.MethodPost, "https://10.19.133.55:443/artemis/api/common/v1/version", nil)
	require.NoError(t, err)

	testSigner.Sign(req, body, testNonce, time.UnixMilli(1592894521052))

	assert.Equal(t, "CIDY2Kv3qhPmfhmvaCqZDA==", req.Header.Get(HeaderContentMD5))
	assert.Equal(t, "22452825", req.Header.Get(HeaderKey))
	assert.Equal(t, testNonce, req.Header.Get(HeaderNonce))
	assert.Equal(t, testTimestamp, req.Header.Get(HeaderTimestamp))
	assert.Equal(t, "x-ca-key,x-ca-nonce,x-ca-timestamp", req.Header.Get(HeaderSignatureHeaders))
	assert.Equal(t, contentTypeJSON, req.Header.Get("Content-Type"))
	assert.Equal(t, "h85YcfAKYddgyVHPROQX00JkJG0e8n0TqpfNI3RYuMw=", req.Header.Get(HeaderSignature))
}

func TestSign_NoBodyOmitsContentMD5(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://host/artemis/api/common/v1/version", nil)
	require.NoError(t, err)

	testSigner.Sign(req, nil, testNonce, time.UnixMilli(1592894521052))

	assert.Empty(t, req.Header.Get(HeaderContentMD5))
	assert.Equal(t, "zJ7mcv6d2aUfmWTzo4AlAWyyXMWSCS59xnFzb13NY3M=", req.Header.Get(HeaderSignature))
}

func TestSign_QueryIsSigned(t *testing.T) {
	plain, _ := http.NewRequest(http.MethodPost, "https://host/artemis/api/x", nil)
	withQuery, _ := http.NewRequest(http.MethodPost, "https://host/artemis/api/x?a=1", nil)
	at := time.UnixMilli(1592894521052)

	testSigner.Sign(plain, nil, testNonce, at)
	testSigner.Sign(withQuery, nil, testNonce, at)

	assert.NotEqual(t, plain.Header.Get(HeaderSignature), withQuery.Header.Get(HeaderSignature))
}
