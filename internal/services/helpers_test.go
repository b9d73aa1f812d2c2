package services

import "github.com/fyrsmithlabs/contractd/internal/analysis"

func analysisRequest() analysis.Request {
	return analysis.Request{IngestionID: "ing-1", ContractType: "nda"}
}
