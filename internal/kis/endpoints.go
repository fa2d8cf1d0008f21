package kis

const (
	virtualBaseURL = "https://openapivts.koreainvestment.com:29443"
	realBaseURL    = "https://openapi.koreainvestment.com:9443"

	tokenPath      = "/oauth2/tokenP"
	orderCashPath  = "/uapi/domestic-stock/v1/trading/order-cash"
	balancePath    = "/uapi/domestic-stock/v1/trading/inquire-balance"
	pricePath      = "/uapi/domestic-stock/v1/quotations/inquire-price"
	volumeRankPath = "/uapi/domestic-stock/v1/quotations/volume-rank"

	// 01 为市价单，价格固定填 0
	orderDivisionMarket = "01"
	marketPrice         = "0"

	marketDivisionStock = "J"
)

// transactionIDs 为每类调用要求的 tr_id。
type transactionIDs struct {
	Buy        string
	Sell       string
	Balance    string
	Price      string
	VolumeRank string
}

var (
	virtualTransactionIDs = transactionIDs{
		Buy:        "VTTC0802U",
		Sell:       "VTTC0801U",
		Balance:    "VTTC8434R",
		Price:      "FHKST01010100",
		VolumeRank: "VHPST01710000",
	}
	realTransactionIDs = transactionIDs{
		Buy:        "TTTC0802U",
		Sell:       "TTTC0801U",
		Balance:    "TTTC8434R",
		Price:      "FHKST01010100",
		VolumeRank: "FHPST01710000",
	}
)

func (t transactionIDs) order(side Side) (string, Operation) {
	if side == SideSell {
		return t.Sell, OpOrderSell
	}
	return t.Buy, OpOrderBuy
}

func balanceQuery(account AccountIdentity) map[string]string {
	return map[string]string{
		"CANO":                  account.Prefix,
		"ACNT_PRDT_CD":          account.Suffix,
		"AFHR_FLPR_YN":          "N",
		"OFL_YN":                "",
		"INQR_DVSN":             "01",
		"UNPR_DVSN":             "01",
		"FUND_STTL_ICLD_YN":     "N",
		"FNCG_AMT_AUTO_RDPT_YN": "N",
		"PRCS_DVSN":             "00",
		"CTX_AREA_FK100":        "",
		"CTX_AREA_NK100":        "",
	}
}

func priceQuery(code string) map[string]string {
	return map[string]string{
		"FID_COND_MRKT_DIV_CODE": marketDivisionStock,
		"FID_INPUT_ISCD":         code,
	}
}

func volumeRankQuery() map[string]string {
	return map[string]string{
		"FID_COND_MRKT_DIV_CODE": marketDivisionStock,
		"FID_COND_SCR_DIV_CODE":  "20171",
		"FID_INPUT_ISCD":         "0000",
		"FID_DIV_CLS_CODE":       "0",
		"FID_BLNG_CLS_CODE":      "0",
		"FID_TRGT_CLS_CODE":      "111111111",
		"FID_TRGT_EXLS_CLS_CODE": "0000000000",
		"FID_INPUT_PRICE_1":      "",
		"FID_INPUT_PRICE_2":      "",
		"FID_VOL_CNT":            "",
		"FID_INPUT_DATE_1":       "",
	}
}
