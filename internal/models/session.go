package models

// Status — состояние сессии. Все переходы между состояниями выполняет
// единственный владелец сессии (session.Manager), конкурентных писателей нет.
//
// Диаграмма переходов:
//
//	Anonymous      --login-->            Authenticating
//	Authenticating --успех-->            Authenticated
//	Authenticating --ошибка-->           Anonymous
//	Authenticated  --401 замечен-->      Refreshing
//	Refreshing     --refresh успешен-->  Authenticated
//	Refreshing     --refresh отклонён--> Terminated
//	Terminated     --teardown-->         Anonymous
//	любое другое   --logout-->           Anonymous
type Status int8

const (
	StatusAnonymous Status = iota
	StatusAuthenticating
	StatusAuthenticated
	StatusRefreshing
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusRefreshing:
		return "refreshing"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
