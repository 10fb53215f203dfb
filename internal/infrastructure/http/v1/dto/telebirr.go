package dto

import (
	"retailcore/internal/core/types"
	"retailcore/internal/domain/telebirr"
)

// CreateAgentRequest registers a Telebirr agent.
type CreateAgentRequest struct {
	Code  string `json:"code" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone,omitempty"`
}

// ToAgent maps to the domain agent.
func (r CreateAgentRequest) ToAgent() *telebirr.Agent {
	return &telebirr.Agent{
		Code:   r.Code,
		Name:   r.Name,
		Phone:  r.Phone,
		Status: telebirr.AgentActive,
	}
}

// SetAgentStatusRequest changes an agent's lifecycle state.
type SetAgentStatusRequest struct {
	Status telebirr.AgentStatus `json:"status" binding:"required"`
}

// CreateBankAccountRequest registers a settlement bank account.
type CreateBankAccountRequest struct {
	Name          string `json:"name" binding:"required"`
	AccountNumber string `json:"accountNumber" binding:"required"`
	BankName      string `json:"bankName,omitempty"`
	GLAccountCode string `json:"glAccountCode" binding:"required"`
}

// ToBankAccount maps to the domain bank account.
func (r CreateBankAccountRequest) ToBankAccount() *telebirr.BankAccount {
	return &telebirr.BankAccount{
		Name:          r.Name,
		AccountNumber: r.AccountNumber,
		BankName:      r.BankName,
		GLAccountCode: r.GLAccountCode,
		Status:        telebirr.BankAccountActive,
	}
}

// AgentOutstandingResponse reports an agent's posted subledger balance.
type AgentOutstandingResponse struct {
	AgentCode   string      `json:"agentCode"`
	Outstanding types.Money `json:"outstanding"`
}
