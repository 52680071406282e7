package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/leskodex/pkg/app/core/asset"
	"github.com/uhyunpark/leskodex/pkg/app/core/transaction"
	"github.com/uhyunpark/leskodex/pkg/crypto"
)

// Default local deployer (hardhat account #0).
const defaultDeployer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func main() {
	var (
		key        = flag.String("key", "", "hex private key (generates a fresh key when empty)")
		kind       = flag.String("type", string(transaction.TxDepositNative), "transaction type")
		nonce      = flag.Uint64("nonce", 1, "account nonce (last sequenced nonce + 1)")
		assetFlag  = flag.String("asset", "", "asset: native, token or a hex address")
		to         = flag.String("to", "", "recipient or spender address")
		amount     = flag.String("amount", "", "amount in whole units, e.g. 1.5")
		assetGet   = flag.String("asset-get", "", "order: asset the maker receives")
		amountGet  = flag.String("amount-get", "", "order: amount the maker receives")
		assetGive  = flag.String("asset-give", "", "order: asset the maker gives")
		amountGive = flag.String("amount-give", "", "order: amount the maker gives")
		orderID    = flag.Uint64("order", 0, "order id for cancel_order and fill_order")
		deployer   = flag.String("deployer", defaultDeployer, "deployer the token and exchange addresses derive from")
		chainID    = flag.Uint64("chain-id", 1337, "EIP-712 chain id")
		submit     = flag.String("submit", "", "node base URL to submit to, e.g. http://localhost:8080")
	)
	flag.Parse()

	if !common.IsHexAddress(*deployer) {
		fail("invalid deployer %q", *deployer)
	}
	dep := common.HexToAddress(*deployer)
	tokenAddr := ethcrypto.CreateAddress(dep, 0)
	exchangeAddr := ethcrypto.CreateAddress(dep, 1)

	// Step 1: Load or generate key
	var signer *crypto.Signer
	var err error
	if *key == "" {
		signer, err = crypto.GenerateKey()
		if err == nil {
			fmt.Fprintf(os.Stderr, "Generated key %s for %s (KEEP SECRET!)\n", signer.PrivateKeyHex(), signer.Address().Hex())
		}
	} else {
		signer, err = crypto.FromPrivateKeyHex(*key)
	}
	if err != nil {
		fail("key: %v", err)
	}

	// Step 2: Build action
	resolve := func(s string) common.Address {
		switch strings.ToLower(s) {
		case "", "native", "eth":
			return asset.Native
		case "token":
			return tokenAddr
		}
		if !common.IsHexAddress(s) {
			fail("invalid address %q", s)
		}
		return common.HexToAddress(s)
	}
	units := func(name, s string) *uint256.Int {
		v, err := asset.ParseAmount(s, asset.Decimals)
		if err != nil {
			fail("%s: %v", name, err)
		}
		return v
	}

	action := &transaction.Action{
		Type:    transaction.TxType(*kind),
		Account: signer.Address(),
		Nonce:   *nonce,
	}
	switch action.Type {
	case transaction.TxDepositNative, transaction.TxWithdrawNative:
		action.Amount = units("amount", *amount)
	case transaction.TxDepositToken, transaction.TxWithdrawToken:
		action.Asset = resolve(orDefault(*assetFlag, "token"))
		action.Amount = units("amount", *amount)
	case transaction.TxTokenTransfer, transaction.TxTokenApprove:
		action.Asset = resolve(orDefault(*assetFlag, "token"))
		action.To = resolve(*to)
		action.Amount = units("amount", *amount)
	case transaction.TxNativeTransfer:
		action.To = resolve(*to)
		action.Amount = units("amount", *amount)
	case transaction.TxMakeOrder:
		action.AssetGet = resolve(*assetGet)
		action.AmountGet = units("amount-get", *amountGet)
		action.AssetGive = resolve(*assetGive)
		action.AmountGive = units("amount-give", *amountGive)
	case transaction.TxCancelOrder, transaction.TxFillOrder:
		action.OrderID = *orderID
	default:
		fail("unknown transaction type %q", *kind)
	}

	// Step 3: Sign with EIP-712
	domain := crypto.DefaultDomain(exchangeAddr)
	domain.ChainID = new(big.Int).SetUint64(*chainID)
	signed, err := transaction.Sign(signer, domain, action)
	if err != nil {
		fail("sign: %v", err)
	}

	// Step 4: Verify round-trip before printing
	if _, err := transaction.NewVerifier(domain).Verify(signed); err != nil {
		fail("verify: %v", err)
	}

	txJSON, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		fail("encode: %v", err)
	}
	fmt.Println(string(txJSON))

	if *submit == "" {
		return
	}

	// Step 5: Submit
	body, err := signed.Serialize()
	if err != nil {
		fail("encode: %v", err)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(strings.TrimRight(*submit, "/")+"/api/v1/tx", "application/json", bytes.NewReader(body))
	if err != nil {
		fail("submit: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Fprintf(os.Stderr, "HTTP %d\n", resp.StatusCode)
	fmt.Println(string(out))
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
