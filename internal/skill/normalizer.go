// Package skill 提供技能名规范化与技能经验聚合。
package skill

import "strings"

// variantTable 技能族静态变体表：规范族名 -> 常见变体写法。
// 匹配时大小写不敏感，变体命中即归入对应技能族。
var variantTable = map[string][]string{
	".NET": {
		".net", ".net core", ".net framework", ".net 5", ".net 6", ".net 7", ".net 8",
		"dotnet", "dotnet core", "asp.net", "asp.net core", "asp.net mvc",
	},
	"C#": {"c#", "csharp", "c sharp"},
	"Java": {
		"java", "java 8", "java 11", "java 17", "java se", "java ee", "j2ee",
	},
	"Spring": {"spring", "spring boot", "spring framework", "spring mvc", "spring cloud"},
	"Python": {"python", "python 2", "python 3", "python3"},
	"JavaScript": {
		"javascript", "js", "es6", "ecmascript", "vanilla js",
	},
	"TypeScript": {"typescript", "ts"},
	"React": {"react", "react.js", "reactjs", "react js", "react native"},
	"Angular": {"angular", "angularjs", "angular.js", "angular 2+"},
	"Vue": {"vue", "vue.js", "vuejs", "vue 3"},
	"Node.js": {"node", "node.js", "nodejs", "node js"},
	"Go": {"go", "golang"},
	"SQL Server": {
		"sql server", "mssql", "ms sql", "ms sql server", "microsoft sql server", "t-sql",
	},
	"MySQL": {"mysql", "mysql 5.7", "mysql 8", "mariadb"},
	"PostgreSQL": {"postgresql", "postgres", "pgsql"},
	"MongoDB": {"mongodb", "mongo"},
	"Redis": {"redis"},
	"Elasticsearch": {"elasticsearch", "elastic search", "es", "opensearch"},
	"Kafka": {"kafka", "apache kafka"},
	"RabbitMQ": {"rabbitmq", "rabbit mq"},
	"AWS": {"aws", "amazon web services"},
	"EC2": {"ec2", "aws ec2", "amazon ec2"},
	"S3": {"s3", "aws s3", "amazon s3"},
	"Lambda": {"lambda", "aws lambda", "amazon lambda"},
	"Azure": {"azure", "microsoft azure"},
	"Azure Functions": {"azure functions", "azure function"},
	"GCP": {"gcp", "google cloud", "google cloud platform"},
	"Docker": {"docker", "docker compose", "docker-compose"},
	"Kubernetes": {"kubernetes", "k8s", "kube"},
	"Terraform": {"terraform"},
	"CI/CD": {"ci/cd", "cicd", "ci cd", "continuous integration", "continuous delivery"},
	"Git": {"git", "github", "gitlab", "bitbucket"},
	"REST": {"rest", "rest api", "restful", "restful api", "web api"},
	"GraphQL": {"graphql"},
	"gRPC": {"grpc"},
	"Linux": {"linux", "ubuntu", "centos", "rhel"},
	"Machine Learning": {"machine learning", "ml"},
	"HTML/CSS": {"html", "css", "html5", "css3", "html/css"},
}

// Normalizer 基于静态变体表做技能名规范化
type Normalizer struct {
	// variantToFamily 小写变体 -> 规范族名
	variantToFamily map[string]string
}

// NewNormalizer 构建规范化器，预编译变体反查表
func NewNormalizer() *Normalizer {
	idx := make(map[string]string, len(variantTable)*4)
	for family, variants := range variantTable {
		idx[strings.ToLower(family)] = family
		for _, v := range variants {
			idx[strings.ToLower(v)] = family
		}
	}
	return &Normalizer{variantToFamily: idx}
}

// Normalize 返回技能名所属的规范族名；不在表中的名字原样返回（去首尾空白）。
func (n *Normalizer) Normalize(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	if family, ok := n.variantToFamily[strings.ToLower(trimmed)]; ok {
		return family
	}
	return trimmed
}

// Family 返回规范族名对应的全部变体写法；未知族返回 nil。
func (n *Normalizer) Family(family string) []string {
	canonical, ok := n.variantToFamily[strings.ToLower(strings.TrimSpace(family))]
	if !ok {
		return nil
	}
	variants := variantTable[canonical]
	out := make([]string, 0, len(variants)+1)
	out = append(out, canonical)
	for _, v := range variants {
		if !strings.EqualFold(v, canonical) {
			out = append(out, v)
		}
	}
	return out
}

// SameFamily 判断两个技能名是否归属同一技能族
func (n *Normalizer) SameFamily(a, b string) bool {
	fa := n.Normalize(a)
	fb := n.Normalize(b)
	return fa != "" && strings.EqualFold(fa, fb)
}

// Known 判断技能名是否能被静态表解析到某个技能族
func (n *Normalizer) Known(name string) bool {
	_, ok := n.variantToFamily[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Generic 判断要求名是否为"泛指"写法。泛指写法（如 ".NET"、"dotnet"）可以
// 直接展开为整个技能族；带版本号的写法（如 ".NET 6"、"Java 8"）视为特指，
// 只能精确匹配，不展开同族变体。
func (n *Normalizer) Generic(name string) bool {
	trimmed := strings.TrimSpace(name)
	family, ok := n.variantToFamily[strings.ToLower(trimmed)]
	if !ok {
		return false
	}
	if strings.EqualFold(trimmed, family) {
		return true
	}
	return !strings.ContainsAny(trimmed, "0123456789")
}
