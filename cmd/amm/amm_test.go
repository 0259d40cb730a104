package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cpamm/internal/model"
)

const journal = `{"seq":1,"op":"init_authority","timestamp":1700000001,"signer":"0x00000000000000000000000000000000000000a1"}
{"seq":2,"op":"create_mint","timestamp":1700000002,"signer":"0x00000000000000000000000000000000000000a1","mint":"0x00000000000000000000000000000000000000b1","decimals":6}
{"seq":3,"op":"create_mint","timestamp":1700000003,"signer":"0x00000000000000000000000000000000000000a1","mint":"0x00000000000000000000000000000000000000b2","decimals":6}
{"seq":4,"op":"mint_to","timestamp":1700000004,"signer":"0x00000000000000000000000000000000000000a1","mint":"0x00000000000000000000000000000000000000b1","to":"0x00000000000000000000000000000000000000c1","amount":10000000}
{"seq":5,"op":"mint_to","timestamp":1700000005,"signer":"0x00000000000000000000000000000000000000a1","mint":"0x00000000000000000000000000000000000000b2","to":"0x00000000000000000000000000000000000000c1","amount":10000000}
{"seq":6,"op":"create_pool","timestamp":1700000006,"signer":"0x00000000000000000000000000000000000000a1","pool_id":7,"mint_x":"0x00000000000000000000000000000000000000b1","mint_y":"0x00000000000000000000000000000000000000b2","fee_bips":30}
{"seq":7,"op":"deposit","timestamp":1700000007,"signer":"0x00000000000000000000000000000000000000c1","pool_id":7,"amount":1,"max_x":1000000,"max_y":1000000,"deadline":1700000100}
{"seq":8,"op":"swap","timestamp":1700000008,"signer":"0x00000000000000000000000000000000000000c1","pool_id":7,"amount":1000,"is_x_to_y":true,"min_amount_out":997,"deadline":1700000100}
`

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestReplayThenQuote(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "instructions.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(journal), 0o644))

	events := filepath.Join(dir, "events.jsonl")
	errs := filepath.Join(dir, "errors.jsonl")
	state := filepath.Join(dir, "state.json")

	runCLI(t, "replay",
		"--in", in,
		"--out", events,
		"--errors", errs,
		"--checkpoint", filepath.Join(dir, "checkpoint.json"),
		"--state-file", state,
		"--log-level", "error",
	)

	names := readEventNames(t, events)
	require.Equal(t, []string{model.EventPoolCreated, model.EventDeposit}, names)

	rejected, err := os.ReadFile(errs)
	require.NoError(t, err)
	require.Contains(t, string(rejected), `"code":"BrokenSlippage"`)

	out := runCLI(t, "quote",
		"--state-file", state,
		"--pool", "7",
		"--amount", "1000",
		"--lp", "1000",
	)

	var q poolQuote
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &q))
	require.Empty(t, q.Error)
	require.Equal(t, uint16(7), q.PoolID)
	require.Equal(t, uint64(1_000_000), q.ReserveX)
	require.Equal(t, uint64(1_000_000), q.ReserveY)
	require.Equal(t, uint64(1_000_000), q.LPSupply)
	require.Equal(t, "1000000000000", q.K)
	require.NotNil(t, q.SpotPrice)
	require.Equal(t, uint64(1_000_000), *q.SpotPrice)

	require.NotNil(t, q.Swap)
	require.Equal(t, uint64(996), q.Swap.AmountOut)
	require.Equal(t, uint64(3), q.Swap.Fee)

	require.NotNil(t, q.Liquidity)
	require.Equal(t, uint64(1_000), q.Liquidity.DepositX)
	require.Equal(t, uint64(1_000), q.Liquidity.WithdrawY)
}

func TestQuoteWithoutSnapshot(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"quote", "--state-file", filepath.Join(t.TempDir(), "none.json")})
	require.ErrorContains(t, root.Execute(), "run replay first")
}

func readEventNames(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec model.EventRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		names = append(names, rec.EventName)
	}
	require.NoError(t, scanner.Err())
	return names
}

func TestQuoteReportsSwapFailure(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "instructions.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(journal), 0o644))
	state := filepath.Join(dir, "state.json")

	runCLI(t, "replay",
		"--in", in,
		"--out", filepath.Join(dir, "events.jsonl"),
		"--errors", filepath.Join(dir, "errors.jsonl"),
		"--checkpoint", filepath.Join(dir, "checkpoint.json"),
		"--state-file", state,
		"--log-level", "error",
	)

	// one unit of input is eaten entirely by the 30 bips fee
	out := runCLI(t, "quote", "--state-file", state, "--pool", "7", "--amount", "1", "--lp", "1000")

	var q poolQuote
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &q))
	require.Nil(t, q.Swap)
	require.Contains(t, q.Error, "swap: invalid amount")
	require.Contains(t, q.Error, "consumed by fees")
	require.Equal(t, uint64(1_000_000), q.ReserveX)
}
