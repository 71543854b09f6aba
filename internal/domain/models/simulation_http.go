package models

type RunSimulationRequest struct {
	Symbol              string             `json:"symbol" default:"QQQ" validate:"required,min=1,max=16"`
	StartDate           string             `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate             string             `json:"end_date" validate:"required,datetime=2006-01-02"`
	AccountSize         float64            `json:"account_size" default:"100000" validate:"gt=0"`
	PipValue            float64            `json:"pip_value" default:"1" validate:"gt=0"`
	Strategy            string             `json:"strategy" default:"ORB_FVG_ENGULFING" validate:"required"`
	BootstrapIterations int                `json:"bootstrap_iterations" default:"1000" validate:"gte=1,lte=100000"`
	Async               bool               `json:"async"`
	Config              *StrategyOverrides `json:"config,omitempty"`
}

type GetSimulationRequest struct {
	ID string `param:"id" validate:"required"`
}

type LiveSignalRequest struct {
	Symbol      string  `query:"symbol" json:"symbol" default:"QQQ" validate:"required,min=1,max=16"`
	Strategy    string  `query:"strategy" json:"strategy" default:"ORB_FVG_ENGULFING" validate:"required"`
	AccountSize float64 `query:"account_size" json:"account_size" default:"100000" validate:"gt=0"`
}
