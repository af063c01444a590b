package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"agent-wallet.backend/internal/interfaces/http/handlers"
	"agent-wallet.backend/internal/observability"
)

type routeDeps struct {
	walletHandler      *handlers.WalletHandler
	transactionHandler *handlers.TransactionHandler
	approvalHandler    *handlers.ApprovalHandler
	policyHandler      *handlers.PolicyHandler
	sessionHandler     *handlers.SessionHandler
	authMiddleware     gin.HandlerFunc
}

func registerHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func registerMetricsRoute(r *gin.Engine, reg *prometheus.Registry) {
	r.GET("/metrics", gin.WrapH(observability.Handler(reg)))
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		// Operator surface: wallet lifecycle, policies, approvals, sessions.
		// The daemon is self-hosted and this surface binds to the operator's
		// own network; agent calls are the only token-gated ones.
		wallets := v1.Group("/wallets")
		{
			wallets.POST("", d.walletHandler.CreateWallet)
			wallets.GET("", d.walletHandler.ListWallets)
			wallets.GET("/:id", d.walletHandler.GetWallet)
			wallets.POST("/:id/suspend", d.walletHandler.SuspendWallet)
			wallets.POST("/:id/resume", d.walletHandler.ResumeWallet)
			wallets.POST("/:id/terminate", d.walletHandler.TerminateWallet)
			wallets.PUT("/:id/owner", d.walletHandler.SetOwner)

			wallets.POST("/:id/policies", d.policyHandler.CreatePolicy)
			wallets.GET("/:id/policies", d.policyHandler.ListPolicies)

			wallets.GET("/:id/approvals", d.approvalHandler.ListPendingApprovals)

			wallets.POST("/:id/sessions", d.sessionHandler.CreateSession)
			wallets.DELETE("/:id/sessions", d.sessionHandler.RevokeSession)

			wallets.GET("/:id/transactions", d.transactionHandler.ListTransactions)
		}

		policies := v1.Group("/policies")
		{
			policies.POST("", d.policyHandler.CreateGlobalPolicy)
			policies.PUT("/:id/enabled", d.policyHandler.SetPolicyEnabled)
			policies.DELETE("/:id", d.policyHandler.DeletePolicy)
		}

		approvals := v1.Group("/approvals")
		{
			approvals.POST("/:id/resolve", d.approvalHandler.ResolveApproval)
		}

		// Agent surface: session-token gated.
		agent := v1.Group("/wallets/:id")
		agent.Use(d.authMiddleware)
		{
			agent.POST("/transactions", d.transactionHandler.SendTransaction)
		}

		transactions := v1.Group("/transactions")
		{
			transactions.GET("/:id", d.transactionHandler.GetTransaction)
		}
	}
}
