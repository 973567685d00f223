package polymarket

// auth.go — cliente autenticado del CLOB.
//
//   L1: firma EIP-712 (ClobAuth) con la clave de la wallet → credenciales de API
//   L2: HMAC-SHA256 sobre cada petición autenticada

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

const (
	polygonChainID = int64(137)

	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"

	// La dirección cero como taker deja la orden pública.
	zeroAddress = "0x0000000000000000000000000000000000000000"
)

// apiCredentials son las credenciales L2 derivadas de la wallet.
type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`

	secret []byte // Secret decodificado
}

// AuthClient añade autenticación L1/L2 y firma de órdenes al Client base.
type AuthClient struct {
	*Client
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	orderBuilder builder.ExchangeOrderBuilder
	creds        *apiCredentials
}

// NewAuthClient crea el cliente autenticado. Acepta la clave con o sin prefijo 0x.
func NewAuthClient(clobBase, gammaBase, privateKeyHex string) (*AuthClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", err)
	}
	return &AuthClient{
		Client:       NewClient(clobBase, gammaBase),
		privateKey:   key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		orderBuilder: builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}, nil
}

// Address devuelve la dirección de la wallet.
func (ac *AuthClient) Address() string {
	return ac.address.Hex()
}

// EnsureCreds deriva las credenciales L2 con una firma L1. Se llama al
// arrancar; las credenciales quedan cacheadas.
func (ac *AuthClient) EnsureCreds(ctx context.Context) error {
	if ac.creds != nil {
		return nil
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := ac.signClobAuth(ts, 0)
	if err != nil {
		return fmt.Errorf("auth: sign l1: %w", err)
	}

	url := ac.clobBase + "/auth/derive-api-key"
	body, err := ac.doWithRetry(ctx, ac.clobLimiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("POLY_ADDRESS", ac.address.Hex())
		req.Header.Set("POLY_SIGNATURE", sig)
		req.Header.Set("POLY_TIMESTAMP", ts)
		req.Header.Set("POLY_NONCE", "0")
		return ac.http.Do(req)
	})
	if err != nil {
		return fmt.Errorf("auth: derive-api-key: %w", err)
	}

	var creds apiCredentials
	if err := decode(body, &creds); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if creds.APIKey == "" {
		return fmt.Errorf("auth: derive-api-key returned no key")
	}
	creds.secret, err = base64.URLEncoding.DecodeString(creds.Secret)
	if err != nil {
		return fmt.Errorf("auth: decode secret: %w", err)
	}
	ac.creds = &creds
	return nil
}

// clobAuthTypedData es el mensaje EIP-712 que prueba el control de la wallet.
func clobAuthTypedData(addr common.Address, timestamp string, nonce int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    clobDomainName,
			Version: clobDomainVersion,
			ChainId: gethmath.NewHexOrDecimal256(polygonChainID),
		},
		Message: apitypes.TypedDataMessage{
			"address":   addr.Hex(),
			"timestamp": timestamp,
			"nonce":     big.NewInt(nonce),
			"message":   clobAuthMessage,
		},
	}
}

// signClobAuth firma el ClobAuth con V en formato 27/28.
func (ac *AuthClient) signClobAuth(timestamp string, nonce int64) (string, error) {
	hash, _, err := apitypes.TypedDataAndHash(clobAuthTypedData(ac.address, timestamp, nonce))
	if err != nil {
		return "", fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, ac.privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// signL2 añade las cabeceras HMAC a una petición. El timestamp se regenera en
// cada intento.
func (ac *AuthClient) signL2(req *http.Request, path string, body []byte) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, ac.creds.secret)
	mac.Write([]byte(ts + req.Method + path + string(body)))

	req.Header.Set("POLY_ADDRESS", ac.address.Hex())
	req.Header.Set("POLY_SIGNATURE", base64.URLEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_API_KEY", ac.creds.APIKey)
	req.Header.Set("POLY_PASSPHRASE", ac.creds.Passphrase)
}

// doL2 ejecuta una petición L2 con el mismo rate limiting y retries que el
// resto del cliente.
func (ac *AuthClient) doL2(ctx context.Context, method, path string, in, out any) error {
	if ac.creds == nil {
		return fmt.Errorf("auth: credentials not derived yet")
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
	}

	body, err := ac.doWithRetry(ctx, ac.clobLimiter, func() (*http.Response, error) {
		var r io.Reader
		if len(payload) > 0 {
			r = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, ac.clobBase+path, r)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		ac.signL2(req, path, payload)
		return ac.http.Do(req)
	})
	if err != nil {
		return err
	}
	return decode(body, out)
}

// buildSignedOrder crea una orden EIP-712 firmada para la petición dada.
// Para BUY, req.Size son USDC; para SELL son shares.
// Usa aritmética entera: el CLOB exige makerAmount == price * takerAmount exacto.
func (ac *AuthClient) buildSignedOrder(req domain.OrderRequest) (*gomodel.SignedOrder, error) {
	if req.Price <= 0 || req.Price >= 1 {
		return nil, fmt.Errorf("invalid price %.4f", req.Price)
	}
	pricePrecision := detectPricePrecision(req.Price)
	priceInt := int64(math.Round(req.Price * float64(pricePrecision)))
	amountFactor := int64(1_000_000) / (100 * pricePrecision)

	var (
		sharesCents int64
		side        gomodel.Side
	)
	switch req.Side {
	case domain.SideBuy:
		sharesCents = int64(math.Floor(req.Size / req.Price * 100))
		side = gomodel.BUY
	case domain.SideSell:
		sharesCents = int64(math.Floor(req.Size * 100))
		side = gomodel.SELL
	default:
		return nil, fmt.Errorf("unknown side %q", req.Side)
	}

	// BUY entrega USDC y recibe shares; SELL al revés.
	usdcAmount := sharesCents * priceInt * amountFactor
	shareAmount := sharesCents * 10000
	makerAmount, takerAmount := usdcAmount, shareAmount
	if side == gomodel.SELL {
		makerAmount, takerAmount = shareAmount, usdcAmount
	}
	if makerAmount <= 0 || takerAmount <= 0 {
		return nil, fmt.Errorf("invalid amounts: maker=%d taker=%d (price=%.4f size=%.4f)", makerAmount, takerAmount, req.Price, req.Size)
	}

	var verifyingContract gomodel.VerifyingContract = gomodel.CTFExchange
	if req.NegRisk {
		verifyingContract = gomodel.NegRiskCTFExchange
	}

	signed, err := ac.orderBuilder.BuildSignedOrder(ac.privateKey, &gomodel.OrderData{
		Maker:         ac.address.Hex(),
		Taker:         zeroAddress,
		TokenId:       req.TokenID,
		MakerAmount:   strconv.FormatInt(makerAmount, 10),
		TakerAmount:   strconv.FormatInt(takerAmount, 10),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        ac.address.Hex(),
		Expiration:    "0",
		Side:          side,
		SignatureType: gomodel.EOA,
	}, verifyingContract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}

// detectPricePrecision devuelve el multiplicador del tick del precio.
// Ej: 0.60 → 100 (tick 0.01), 0.673 → 1000 (tick 0.001).
func detectPricePrecision(price float64) int64 {
	for _, prec := range []int64{100, 1000, 10000} {
		rounded := math.Round(price * float64(prec))
		if math.Abs(rounded/float64(prec)-price) < 1e-10 {
			return prec
		}
	}
	return 100
}
