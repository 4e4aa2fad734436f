package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"requity/contexts/payment-rails/settlement-engine/domain/entities"
	"requity/contexts/payment-rails/settlement-engine/domain/errors"
)

const (
	tokenDecimals = 6

	// transferChecked instruction tag in the token program.
	transferCheckedTag = 12

	fallbackFeeLamports = 5000
	lamportsPerSol      = 9
)

// Token-2022 program, which owns the PYUSD mint on both devnet and mainnet.
var token2022ProgramID = solanago.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// Config carries the wallet and network settings for one Solana client.
type Config struct {
	RPCURL     string
	PrivateKey string
	Mint       string
	Logger     *slog.Logger
}

// Client submits PYUSD transfers on Solana. Each transfer is a single
// transaction: create the recipient's token account when missing, then
// transferChecked, then an optional memo.
type Client struct {
	rpc    *rpc.Client
	signer solanago.PrivateKey
	payer  solanago.PublicKey
	mint   solanago.PublicKey
	logger *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("%w: solana rpc url is empty", errors.ErrConfigurationMissing)
	}
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, fmt.Errorf("%w: solana private key is empty", errors.ErrConfigurationMissing)
	}
	signer, err := solanago.PrivateKeyFromBase58(strings.TrimSpace(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: solana private key is not valid base58", errors.ErrConfigurationMissing)
	}
	mint, err := solanago.PublicKeyFromBase58(strings.TrimSpace(cfg.Mint))
	if err != nil {
		return nil, fmt.Errorf("%w: token mint address is not valid", errors.ErrConfigurationMissing)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rpc:    rpc.New(strings.TrimSpace(cfg.RPCURL)),
		signer: signer,
		payer:  signer.PublicKey(),
		mint:   mint,
		logger: logger,
	}, nil
}

func (c *Client) Family() entities.NetworkFamily { return entities.FamilySolana }

func (c *Client) PayerAddress() string { return c.payer.String() }

func (c *Client) SubmitTransfer(ctx context.Context, address string, amount decimal.Decimal, memo string) (string, error) {
	recipient, err := solanago.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("%w: recipient address is not a valid solana key", errors.ErrTransferRejected)
	}

	sourceAccount, err := c.tokenAccount(c.payer)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTransferRejected, err)
	}
	destAccount, err := c.tokenAccount(recipient)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTransferRejected, err)
	}

	instructions := make([]solanago.Instruction, 0, 3)

	destExists, err := c.accountExists(ctx, destAccount)
	if err != nil {
		return "", fmt.Errorf("%w: destination account lookup: %v", errors.ErrTransferNetwork, err)
	}
	if !destExists {
		instructions = append(instructions, createTokenAccountInstruction(c.payer, destAccount, recipient, c.mint))
	}

	instructions = append(instructions, transferCheckedInstruction(
		sourceAccount, c.mint, destAccount, c.payer, tokenBaseUnits(amount), tokenDecimals,
	))
	if memo != "" {
		instructions = append(instructions, memoInstruction(c.payer, memo))
	}

	blockhash, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("%w: blockhash fetch: %v", errors.ErrTransferNetwork, err)
	}

	tx, err := solanago.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solanago.TransactionPayer(c.payer),
	)
	if err != nil {
		return "", fmt.Errorf("%w: transaction build: %v", errors.ErrTransferRejected, err)
	}
	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(c.payer) {
			return &c.signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("%w: transaction sign: %v", errors.ErrTransferRejected, err)
	}

	signature, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		return "", classifySubmitError(err)
	}

	c.logger.Info("solana transfer submitted",
		"event", "solana_transfer_submitted",
		"module", "payment-rails/transfer-gateway",
		"layer", "adapter",
		"recipient", recipient.String(),
		"amount", amount.String(),
		"signature", signature.String(),
		"created_token_account", !destExists,
	)
	return signature.String(), nil
}

func (c *Client) QueryBalance(ctx context.Context, address string) (entities.BalanceInfo, error) {
	owner, err := solanago.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return entities.BalanceInfo{}, fmt.Errorf("address is not a valid solana key: %w", err)
	}

	native, err := c.rpc.GetBalance(ctx, owner, rpc.CommitmentFinalized)
	if err != nil {
		return entities.BalanceInfo{}, fmt.Errorf("native balance fetch: %w", err)
	}

	info := entities.BalanceInfo{
		Native: decimal.New(int64(native.Value), -lamportsPerSol),
	}

	tokenAccount, err := c.tokenAccount(owner)
	if err != nil {
		return entities.BalanceInfo{}, err
	}
	tokenBalance, err := c.rpc.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentFinalized)
	if err != nil {
		// An owner with no token account simply holds zero tokens.
		if isNotFound(err) {
			return info, nil
		}
		return entities.BalanceInfo{}, fmt.Errorf("token balance fetch: %w", err)
	}
	if tokenBalance.Value == nil {
		return info, nil
	}
	raw, err := decimal.NewFromString(tokenBalance.Value.Amount)
	if err != nil {
		return entities.BalanceInfo{}, fmt.Errorf("token balance parse: %w", err)
	}
	info.Token = raw.Shift(-tokenDecimals)
	return info, nil
}

func (c *Client) EstimateCost(ctx context.Context) (entities.FeeEstimate, error) {
	fallback := entities.FeeEstimate{
		PerTransferFee: decimal.New(fallbackFeeLamports, -lamportsPerSol),
		Currency:       "SOL",
	}

	blockhash, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return fallback, nil
	}

	// Fee is estimated from a representative single-transfer message.
	probe := transferCheckedInstruction(c.payer, c.mint, c.payer, c.payer, 1, tokenDecimals)
	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{probe},
		blockhash.Value.Blockhash,
		solanago.TransactionPayer(c.payer),
	)
	if err != nil {
		return fallback, nil
	}
	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fallback, nil
	}
	fee, err := c.rpc.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(message), rpc.CommitmentFinalized)
	if err != nil || fee.Value == nil {
		return fallback, nil
	}
	return entities.FeeEstimate{
		PerTransferFee: decimal.New(int64(*fee.Value), -lamportsPerSol),
		Currency:       "SOL",
	}, nil
}

// tokenAccount derives the owner's associated token account for the mint
// under the Token-2022 program.
func (c *Client) tokenAccount(owner solanago.PublicKey) (solanago.PublicKey, error) {
	account, _, err := solanago.FindProgramAddress(
		[][]byte{owner.Bytes(), token2022ProgramID.Bytes(), c.mint.Bytes()},
		solanago.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("token account derivation: %w", err)
	}
	return account, nil
}

func (c *Client) accountExists(ctx context.Context, account solanago.PublicKey) (bool, error) {
	info, err := c.rpc.GetAccountInfo(ctx, account)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info != nil && info.Value != nil, nil
}

func transferCheckedInstruction(
	source, mint, dest, owner solanago.PublicKey,
	baseUnits uint64,
	decimals uint8,
) solanago.Instruction {
	data := make([]byte, 10)
	data[0] = transferCheckedTag
	binary.LittleEndian.PutUint64(data[1:9], baseUnits)
	data[9] = decimals

	return solanago.NewInstruction(
		token2022ProgramID,
		solanago.AccountMetaSlice{
			solanago.NewAccountMeta(source, true, false),
			solanago.NewAccountMeta(mint, false, false),
			solanago.NewAccountMeta(dest, true, false),
			solanago.NewAccountMeta(owner, false, true),
		},
		data,
	)
}

func createTokenAccountInstruction(payer, account, owner, mint solanago.PublicKey) solanago.Instruction {
	return solanago.NewInstruction(
		solanago.SPLAssociatedTokenAccountProgramID,
		solanago.AccountMetaSlice{
			solanago.NewAccountMeta(payer, true, true),
			solanago.NewAccountMeta(account, true, false),
			solanago.NewAccountMeta(owner, false, false),
			solanago.NewAccountMeta(mint, false, false),
			solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
			solanago.NewAccountMeta(token2022ProgramID, false, false),
		},
		nil,
	)
}

func memoInstruction(signer solanago.PublicKey, memo string) solanago.Instruction {
	return solanago.NewInstruction(
		solanago.MemoProgramID,
		solanago.AccountMetaSlice{
			solanago.NewAccountMeta(signer, false, true),
		},
		[]byte(memo),
	)
}

// tokenBaseUnits converts a decimal token amount to integer base units,
// truncating sub-unit precision.
func tokenBaseUnits(amount decimal.Decimal) uint64 {
	units := amount.Shift(tokenDecimals).IntPart()
	if units < 0 {
		return 0
	}
	return uint64(units)
}

func classifySubmitError(err error) error {
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "insufficient"):
		return fmt.Errorf("%w: %v", errors.ErrTransferInsufficientFunds, err)
	case strings.Contains(message, "blockhash") || strings.Contains(message, "invalid") || strings.Contains(message, "custom program error"):
		return fmt.Errorf("%w: %v", errors.ErrTransferRejected, err)
	default:
		return fmt.Errorf("%w: %v", errors.ErrTransferNetwork, err)
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if err == rpc.ErrNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}
