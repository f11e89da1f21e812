package service

import "errors"

var (
	// ErrChatNotFound 表示指定的已保存对话不存在。
	ErrChatNotFound = errors.New("对话不存在")
	// ErrEmptyHistory 表示会话中没有可保存的消息。
	ErrEmptyHistory = errors.New("当前会话没有可保存的消息")
	// ErrInvalidTitle 表示标题去掉空白后为空。
	ErrInvalidTitle = errors.New("标题不能为空")
	// ErrSearchDisabled 表示未启用 Elasticsearch。
	ErrSearchDisabled = errors.New("对话搜索未启用")
	// ErrExportDisabled 表示未启用对象存储。
	ErrExportDisabled = errors.New("对话导出未启用")
)

var (
	// ErrPlannerUnavailable 表示天气数据未加载，活动规划不可用。
	ErrPlannerUnavailable = errors.New("天气规划服务不可用")
	// ErrInvalidPlanRequest 表示规划请求的参数超出范围。
	ErrInvalidPlanRequest = errors.New("规划请求参数无效")
	// ErrUnknownCity 表示请求的城市不在支持列表中。
	ErrUnknownCity = errors.New("不支持的城市")
	// ErrUnknownEvent 表示请求的活动类型不存在。
	ErrUnknownEvent = errors.New("不支持的活动类型")
)
