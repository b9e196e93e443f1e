package query

// Prompts are in Chinese to match the corpus; the models we target follow
// Chinese instructions more reliably for this domain than translated ones.
const (
	classifySystem = "你是中国刑法领域的查询分类助手。只输出JSON。"

	classifyPromptTmpl = `判断下面的用户问题是否与中国刑法相关(罪名、量刑、刑事责任、具体罪行等)。
输出JSON: {"is_criminal_law": true或false, "confidence": 0到1的小数, "reasoning": "一句话理由"}

用户问题: %s`

	extractSystem = "你是中国刑法领域的信息抽取助手。只输出JSON。"

	extractPromptTmpl = `从下面的用户问题中识别可能涉及的刑法罪名。
输出JSON: {"crimes": [{"name": "罪名(以'罪'结尾)", "confidence": 0到1的小数, "reasoning": "一句话依据"}]}
最多列出5个,没有则输出 {"crimes": []}

用户问题: %s`

	query2docPromptTmpl = `针对下面的法律问题,写一段50到100字的法律条文式描述,
内容应当与最相关的刑法条文表述风格一致,直接输出正文,不要解释。

问题: %s`

	hydePromptTmpl = `假设你是一名刑法律师,针对下面的问题写一段100到200字的假设性回答,
包含可能适用的罪名和法律后果,直接输出正文,不要解释。

问题: %s`

	rephrasePromptTmpl = `把下面的法律问题改写成至多3种不同的法律化表述,便于检索刑法条文。
输出JSON: {"phrasings": ["表述1", "表述2", "表述3"]}

问题: %s`

	answerSystem = "你是中国刑法领域的法律助手。回答要依据给出的条文和案例,不得编造。"

	answerPromptTmpl = `依据下列刑法条文和相关案例,回答用户问题。先给出结论,再引用条文编号说明理由,最后提示"以上内容仅供参考,具体请咨询专业律师"。

用户问题: %s

相关条文:
%s

相关案例:
%s`
)
